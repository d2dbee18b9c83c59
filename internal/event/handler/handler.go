// Package handler wires the event endpoints to the event service. It stays
// a thin transport layer: envelope decoding, id parsing, and error
// translation only.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/httputil"
	"civreg/pkg/requestcontext"

	"civreg/internal/event/models"
	"civreg/internal/event/service"
)

// Service is the event operations interface consumed by the handler.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (models.Event, error)
	Get(ctx context.Context, eventID id.EventID) (models.Event, error)
	GetState(ctx context.Context, eventID id.EventID) (models.EventState, error)
	Accept(ctx context.Context, req models.ActionRequest) (models.Event, error)
}

// AreaResolver resolves administrative-area names for display enrichment of
// location-valued declaration fields. Resolution failures degrade the
// enrichment, never the read.
type AreaResolver interface {
	Names(ctx context.Context, ids []id.AreaID) (map[id.AreaID]string, error)
}

// Handler exposes the event HTTP API.
type Handler struct {
	service Service
	areas   AreaResolver
	logger  *slog.Logger
}

// New constructs an event handler. areas may be nil to disable enrichment.
func New(service Service, areas AreaResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, areas: areas, logger: logger}
}

// Register mounts the event endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events", h.HandleCreate)
	r.Get("/events/{eventID}", h.HandleGet)
	r.Get("/events/{eventID}/state", h.HandleGetState)
	r.Post("/events/{eventID}/actions/{actionType}", h.HandleAction)
}

// HandleCreate handles POST /events.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateEventRequest](w, r, h.logger)
	if !ok {
		return
	}
	domainReq, err := req.ToDomain()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	event, err := h.service.Create(ctx, domainReq)
	if err != nil {
		h.logError(ctx, "create event failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

// HandleGet handles GET /events/{eventID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	event, err := h.service.Get(ctx, eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}

// stateResponse wraps the projected state with optional display enrichment.
type stateResponse struct {
	models.EventState
	// LocationNames maps administrative-area ids appearing in the
	// declaration to their display names. Display-only; not part of the
	// invariant-bearing state.
	LocationNames map[string]string `json:"locationNames,omitempty"`
}

// HandleGetState handles GET /events/{eventID}/state.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	state, err := h.service.GetState(ctx, eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, stateResponse{
		EventState:    state,
		LocationNames: h.resolveLocations(ctx, state),
	})
}

// HandleAction handles POST /events/{eventID}/actions/{actionType}.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	actionType := models.ActionType(chi.URLParam(r, "actionType"))

	req, ok := httputil.Decode[ActionRequest](w, r, h.logger)
	if !ok {
		return
	}
	domainReq, err := req.ToDomain(eventID, actionType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	event, err := h.service.Accept(ctx, domainReq)
	if err != nil {
		h.logError(ctx, "action rejected", err,
			"event_id", eventID, "action", actionType)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}

// resolveLocations collects declaration values that parse as area ids and
// resolves their names through the administrative hierarchy.
func (h *Handler) resolveLocations(ctx context.Context, state models.EventState) map[string]string {
	if h.areas == nil {
		return nil
	}

	var areaIDs []id.AreaID
	for _, value := range state.Declaration {
		s, ok := value.(string)
		if !ok {
			continue
		}
		areaID, err := id.ParseAreaID(s)
		if err != nil {
			continue
		}
		areaIDs = append(areaIDs, areaID)
	}
	if len(areaIDs) == 0 {
		return nil
	}

	names, err := h.areas.Names(ctx, areaIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "location enrichment failed", "error", err)
		return nil
	}
	out := make(map[string]string, len(names))
	for areaID, name := range names {
		out[areaID.String()] = name
	}
	return out
}

func (h *Handler) logError(ctx context.Context, msg string, err error, args ...any) {
	args = append(args,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.InfoContext(ctx, msg, args...)
}
