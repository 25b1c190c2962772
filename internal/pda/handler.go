package pda

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/shared"
)

// PDAService is the behaviour Handler depends on.
type PDAService interface {
	Calculate(ctx context.Context, companyID int64, in CalculateRequest) (Preview, error)
	Save(ctx context.Context, companyID int64, in SaveRequest) (int64, error)
	List(ctx context.Context, companyID int64) ([]Summary, error)
	Detail(ctx context.Context, companyID, id int64) (Detail, error)
	Taxes(ctx context.Context, companyID int64, in TaxRequest) (TaxResult, error)
}

// Handler serves the PDA endpoints.
type Handler struct {
	logger  *slog.Logger
	service PDAService
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service PDAService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the PDA routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.detail)
	r.Post("/calculate", h.calculate)
	r.Post("/save", h.save)
	r.Post("/taxes", h.taxes)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), shared.CompanyID(r.Context()))
	if err != nil {
		h.fail(w, "list pdas", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Detail(r.Context(), shared.CompanyID(r.Context()), id)
	if err != nil {
		h.fail(w, "load pda", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var in CalculateRequest
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	preview, err := h.service.Calculate(r.Context(), shared.CompanyID(r.Context()), in)
	if err != nil {
		h.fail(w, "calculate pda", err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var in SaveRequest
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	id, err := h.service.Save(r.Context(), shared.CompanyID(r.Context()), in)
	if err != nil {
		h.fail(w, "save pda", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "PDA saved", "pdaId": id})
}

func (h *Handler) taxes(w http.ResponseWriter, r *http.Request) {
	var in TaxRequest
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Taxes(r.Context(), shared.CompanyID(r.Context()), in)
	if err != nil {
		h.fail(w, "derive pda taxes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
