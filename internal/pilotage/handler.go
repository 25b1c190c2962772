package pilotage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
	"github.com/portagency/pdadesk/internal/shared"
)

// TariffService is the behaviour Handler depends on.
type TariffService interface {
	ListTariffs(ctx context.Context, companyID int64) ([]Tariff, error)
	SaveTariff(ctx context.Context, companyID int64, in TariffInput) (Tariff, error)
	DeleteTariff(ctx context.Context, companyID, id int64) error
	Ranges(ctx context.Context, companyID, tariffID int64) ([]Range, error)
	ReplaceRanges(ctx context.Context, companyID, tariffID int64, in ReplaceRangesInput) error
	Quote(ctx context.Context, companyID, tariffID int64, value float64) (Range, error)
}

// Handler serves the pilotage endpoints.
type Handler struct {
	logger  *slog.Logger
	service TariffService
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service TariffService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the pilotage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tariffs", h.listTariffs)
	r.Post("/tariffs", h.saveTariff)
	r.Delete("/tariffs/{id}", h.deleteTariff)
	r.Get("/tariffs/{tariffId}/ranges", h.listRanges)
	r.Post("/tariffs/{tariffId}/ranges", h.replaceRanges)
	r.Get("/tariffs/{tariffId}/lookup", h.lookup)
}

func (h *Handler) listTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := h.service.ListTariffs(r.Context(), shared.CompanyID(r.Context()))
	if err != nil {
		h.fail(w, "list pilotage tariffs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tariffs)
}

func (h *Handler) saveTariff(w http.ResponseWriter, r *http.Request) {
	var in TariffInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.SaveTariff(r.Context(), shared.CompanyID(r.Context()), in)
	if err != nil {
		h.fail(w, "save pilotage tariff", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) deleteTariff(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTariff(r.Context(), shared.CompanyID(r.Context()), id); err != nil {
		h.fail(w, "delete pilotage tariff", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listRanges(w http.ResponseWriter, r *http.Request) {
	tariffID, err := httpx.PathID(r, "tariffId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ranges, err := h.service.Ranges(r.Context(), shared.CompanyID(r.Context()), tariffID)
	if err != nil {
		h.fail(w, "list pilotage ranges", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ranges)
}

func (h *Handler) replaceRanges(w http.ResponseWriter, r *http.Request) {
	tariffID, err := httpx.PathID(r, "tariffId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ReplaceRangesInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ReplaceRanges(r.Context(), shared.CompanyID(r.Context()), tariffID, in); err != nil {
		h.fail(w, "replace pilotage ranges", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "ranges saved"})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	tariffID, err := httpx.PathID(r, "tariffId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	raw := r.URL.Query().Get("value")
	if raw == "" {
		httpx.RespondError(w, fmt.Errorf("%w: value is required", httpx.ErrValidation))
		return
	}
	rg, err := h.service.Quote(r.Context(), shared.CompanyID(r.Context()), tariffID, pricing.Normalize(raw))
	if errors.Is(err, ErrNoRange) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if err != nil {
		h.fail(w, "lookup pilotage range", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rg)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
