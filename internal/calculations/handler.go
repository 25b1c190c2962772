package calculations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/shared"
)

// RuleService is the behaviour Handler depends on.
type RuleService interface {
	List(ctx context.Context, companyID, portID int64) ([]Calculation, error)
	Upsert(ctx context.Context, companyID int64, in Input) (Calculation, error)
	Update(ctx context.Context, companyID, id int64, in Input) (Calculation, error)
	Delete(ctx context.Context, companyID, id int64) error
}

// Handler serves the calculation rule endpoints.
type Handler struct {
	logger     *slog.Logger
	service    RuleService
	ruleSchema RuleSchema
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service RuleService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, ruleSchema: NewRuleSchema()}
}

// MountRoutes registers the calculation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/schema", h.schema)
	r.Get("/{portId}", h.list)
	r.Post("/", h.upsert)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	portID, err := httpx.PathID(r, "portId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	calcs, err := h.service.List(r.Context(), shared.CompanyID(r.Context()), portID)
	if err != nil {
		h.fail(w, "list calculations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, calcs)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	calc, err := h.service.Upsert(r.Context(), shared.CompanyID(r.Context()), in)
	if err != nil {
		h.fail(w, "upsert calculation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	calc, err := h.service.Update(r.Context(), shared.CompanyID(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update calculation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), shared.CompanyID(r.Context()), id); err != nil {
		h.fail(w, "delete calculation", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
