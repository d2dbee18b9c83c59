package adminarea

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
)

// Handler exposes the administrative area endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the area handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the area endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/admin-areas", h.HandleSet)
	r.Get("/admin-areas", h.HandleList)
	r.Get("/admin-areas/leaves", h.HandleLeaves)
}

// setRequest is the PUT /admin-areas envelope.
type setRequest struct {
	Areas []Area `json:"areas"`
}

// HandleSet handles PUT /admin-areas.
func (h *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[setRequest](w, r, h.logger)
	if !ok {
		return
	}
	if len(req.Areas) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "areas are required"))
		return
	}

	if err := h.service.SetAreas(ctx, req.Areas); err != nil {
		h.logger.ErrorContext(ctx, "failed to set administrative areas", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"upserted": len(req.Areas)})
}

// HandleList handles GET /admin-areas?ids=...&isActive=...
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var filter ListFilter
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			areaID, err := id.ParseAreaID(strings.TrimSpace(part))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			filter.IDs = append(filter.IDs, areaID)
		}
	}
	switch r.URL.Query().Get("isActive") {
	case "true":
		active := true
		filter.IsActive = &active
	case "false":
		active := false
		filter.IsActive = &active
	}

	areas, err := h.service.List(ctx, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, areas)
}

// HandleLeaves handles GET /admin-areas/leaves.
func (h *Handler) HandleLeaves(w http.ResponseWriter, r *http.Request) {
	leaves, err := h.service.LeafIDs(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, leaves)
}
