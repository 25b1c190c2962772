package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/shared"
)

// Handler handles master data HTTP requests
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler creates a new master data handler
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes mounts the services, port-services and port-remarks routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.listServices)
		r.Post("/", h.createService)
		r.Put("/{id}", h.updateService)
		r.Delete("/{id}", h.deleteService)
	})
	r.Route("/port-services", func(r chi.Router) {
		r.Get("/{portId}", h.listLinks)
		r.Post("/{portId}", h.replaceLinks)
	})
	r.Route("/port-remarks", func(r chi.Router) {
		r.Get("/{portId}", h.listRemarks)
		r.Post("/{portId}", h.replaceRemarks)
	})
}

// Billable service handlers
func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context(), shared.CompanyID(r.Context()))
	if err != nil {
		h.fail(w, "list services", err)
		return
	}
	httpx.JSON(w, http.StatusOK, services)
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	var in ServiceInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateService(r.Context(), shared.CompanyID(r.Context()), in)
	if err != nil {
		h.fail(w, "create service", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ServiceInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.UpdateService(r.Context(), shared.CompanyID(r.Context()), id, in)
	if err != nil {
		h.fail(w, "update service", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	deleted, err := h.service.DeleteService(r.Context(), shared.CompanyID(r.Context()), id)
	if err != nil {
		h.fail(w, "delete service", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// Port link handlers
func (h *Handler) listLinks(w http.ResponseWriter, r *http.Request) {
	portID, err := httpx.PathID(r, "portId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids, err := h.service.LinkedServiceIDs(r.Context(), shared.CompanyID(r.Context()), portID)
	if err != nil {
		h.fail(w, "list port services", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ids)
}

func (h *Handler) replaceLinks(w http.ResponseWriter, r *http.Request) {
	portID, err := httpx.PathID(r, "portId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ReplaceLinksInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ReplaceLinks(r.Context(), shared.CompanyID(r.Context()), portID, in); err != nil {
		h.fail(w, "replace port services", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "port services saved"})
}

// Port remark handlers
func (h *Handler) listRemarks(w http.ResponseWriter, r *http.Request) {
	portID, err := httpx.PathID(r, "portId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	remarks, err := h.service.Remarks(r.Context(), shared.CompanyID(r.Context()), portID)
	if err != nil {
		h.fail(w, "list port remarks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, remarks)
}

func (h *Handler) replaceRemarks(w http.ResponseWriter, r *http.Request) {
	portID, err := httpx.PathID(r, "portId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ReplaceRemarksInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ReplaceRemarks(r.Context(), shared.CompanyID(r.Context()), portID, in); err != nil {
		h.fail(w, "replace port remarks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "remarks saved"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
