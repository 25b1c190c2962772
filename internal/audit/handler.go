package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/shared"
)

// Lister is the read side used by Handler.
type Lister interface {
	Recent(ctx context.Context, companyID int64, limit int) ([]Entry, error)
}

// Handler serves the activity log.
type Handler struct {
	logger  *slog.Logger
	service Lister
}

// NewHandler builds the activity log handler.
func NewHandler(logger *slog.Logger, service Lister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the activity log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Recent(r.Context(), shared.CompanyID(r.Context()), limit)
	if err != nil {
		h.logger.Error("list activity log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
