package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"

	"civreg/internal/event/models"
	"civreg/internal/event/service"
)

// stubService records the last request and returns canned results.
type stubService struct {
	createReq service.CreateRequest
	actionReq models.ActionRequest

	event models.Event
	state models.EventState
	err   error
}

func (s *stubService) Create(_ context.Context, req service.CreateRequest) (models.Event, error) {
	s.createReq = req
	return s.event, s.err
}

func (s *stubService) Get(context.Context, id.EventID) (models.Event, error) {
	return s.event, s.err
}

func (s *stubService) GetState(context.Context, id.EventID) (models.EventState, error) {
	return s.state, s.err
}

func (s *stubService) Accept(_ context.Context, req models.ActionRequest) (models.Event, error) {
	s.actionReq = req
	return s.event, s.err
}

type stubResolver struct {
	names map[id.AreaID]string
	err   error
}

func (r *stubResolver) Names(context.Context, []id.AreaID) (map[id.AreaID]string, error) {
	return r.names, r.err
}

func newRouter(svc Service, areas AreaResolver) http.Handler {
	r := chi.NewRouter()
	New(svc, areas, slog.Default()).Register(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreate(t *testing.T) {
	t.Run("creates an event", func(t *testing.T) {
		svc := &stubService{event: models.Event{ID: id.NewEventID(), Type: models.EventTypeBirth}}
		rec := doJSON(t, newRouter(svc, nil), http.MethodPost, "/events",
			`{"type":"birth","transactionId":"tx-1"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, models.EventTypeBirth, svc.createReq.Type)
		assert.Equal(t, id.TransactionID("tx-1"), svc.createReq.TransactionID)

		var event models.Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
		assert.Equal(t, svc.event.ID, event.ID)
	})

	t.Run("missing transaction id is a validation error", func(t *testing.T) {
		rec := doJSON(t, newRouter(&stubService{}, nil), http.MethodPost, "/events",
			`{"type":"birth"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "transactionId")
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		rec := doJSON(t, newRouter(&stubService{}, nil), http.MethodPost, "/events", `{`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "bad_request")
	})
}

func TestHandleGet(t *testing.T) {
	t.Run("invalid event id is rejected", func(t *testing.T) {
		rec := doJSON(t, newRouter(&stubService{}, nil), http.MethodGet, "/events/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown event maps to 404", func(t *testing.T) {
		svc := &stubService{err: dErrors.New(dErrors.CodeNotFound, "event not found")}
		rec := doJSON(t, newRouter(svc, nil),
			http.MethodGet, "/events/"+id.NewEventID().String(), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
	})
}

func TestHandleAction(t *testing.T) {
	t.Run("routes the action type from the path", func(t *testing.T) {
		eventID := id.NewEventID()
		svc := &stubService{event: models.Event{ID: eventID}}
		rec := doJSON(t, newRouter(svc, nil), http.MethodPost,
			"/events/"+eventID.String()+"/actions/DECLARE",
			`{"transactionId":"tx-2","eventType":"birth","declaration":{"child.firstName":"Ada"}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.ActionDeclare, svc.actionReq.Type)
		assert.Equal(t, eventID, svc.actionReq.EventID)
		assert.Equal(t, "Ada", svc.actionReq.Declaration["child.firstName"])
	})

	t.Run("invalid assignee is a validation error", func(t *testing.T) {
		rec := doJSON(t, newRouter(&stubService{}, nil), http.MethodPost,
			"/events/"+id.NewEventID().String()+"/actions/ASSIGN",
			`{"transactionId":"tx-3","assignedTo":"nobody"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "assignedTo")
	})

	t.Run("conflict from the service maps to 409", func(t *testing.T) {
		svc := &stubService{err: dErrors.New(dErrors.CodeConflict, "event is assigned to another user")}
		rec := doJSON(t, newRouter(svc, nil), http.MethodPost,
			"/events/"+id.NewEventID().String()+"/actions/VALIDATE",
			`{"transactionId":"tx-4"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "conflict")
	})
}

func TestHandleGetState(t *testing.T) {
	areaID, err := id.ParseAreaID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)

	state := models.EventState{
		ID:     id.NewEventID(),
		Type:   models.EventTypeBirth,
		Status: models.StatusDeclared,
		Declaration: models.Declaration{
			"child.firstName":    "Ada",
			"child.placeOfBirth": areaID.String(),
		},
	}

	t.Run("enriches location fields with area names", func(t *testing.T) {
		svc := &stubService{state: state}
		resolver := &stubResolver{names: map[id.AreaID]string{areaID: "Central Province"}}
		rec := doJSON(t, newRouter(svc, resolver),
			http.MethodGet, "/events/"+state.ID.String()+"/state", "")

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Status        models.EventStatus `json:"status"`
			LocationNames map[string]string  `json:"locationNames"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, models.StatusDeclared, resp.Status)
		assert.Equal(t, map[string]string{areaID.String(): "Central Province"}, resp.LocationNames)
	})

	t.Run("resolution failure degrades to no names", func(t *testing.T) {
		svc := &stubService{state: state}
		resolver := &stubResolver{err: assert.AnError}
		rec := doJSON(t, newRouter(svc, resolver),
			http.MethodGet, "/events/"+state.ID.String()+"/state", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, strings.Contains(rec.Body.String(), "locationNames"))
	})

	t.Run("no resolver disables enrichment", func(t *testing.T) {
		svc := &stubService{state: state}
		rec := doJSON(t, newRouter(svc, nil),
			http.MethodGet, "/events/"+state.ID.String()+"/state", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, strings.Contains(rec.Body.String(), "locationNames"))
	})
}
