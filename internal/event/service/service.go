// Package service orchestrates the event write path: legality checks,
// idempotency, duplicate detection, and the transactional append, in that
// order. The action log is the single source of truth; responses return the
// full event document and callers re-derive state themselves.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/requestcontext"

	"civreg/internal/dedup"
	"civreg/internal/event/legality"
	eventmetrics "civreg/internal/event/metrics"
	"civreg/internal/event/models"
	"civreg/internal/event/projection"
	"civreg/internal/event/store"
	"civreg/internal/eventconfig"
)

// Publisher receives committed actions for downstream read-model sync. It
// must never fail the write: the log is already durable when it is called.
type Publisher interface {
	ActionsCommitted(ctx context.Context, event models.Event, actions []models.Action)
}

// Service is the event write/read service.
type Service struct {
	log       store.ActionLog
	tx        store.TxRunner
	legality  *legality.Checker
	configs   eventconfig.Provider
	dedup     *dedup.Checker
	publisher Publisher
	logger    *slog.Logger
	metrics   *eventmetrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPublisher wires the committed-action stream publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics wires the event module metrics.
func WithMetrics(m *eventmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the event service.
func New(log store.ActionLog, txRunner store.TxRunner, checker *legality.Checker,
	configs eventconfig.Provider, dedupChecker *dedup.Checker, opts ...Option) *Service {
	s := &Service{
		log:      log,
		tx:       txRunner,
		legality: checker,
		configs:  configs,
		dedup:    dedupChecker,
		logger:   slog.Default(),
		tracer:   otel.Tracer("civreg/event"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest opens a new event record.
type CreateRequest struct {
	Type          models.EventType
	TransactionID id.TransactionID
}

// Create registers a new event with its initial CREATE action and a fresh
// tracking id. Replaying the same transaction id returns the originally
// created event.
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "event.create",
		trace.WithAttributes(attribute.String("event.type", string(req.Type))))
	defer span.End()

	if !req.Type.Valid() {
		return models.Event{}, dErrors.Newf(dErrors.CodeValidation, "unknown event type %q", req.Type)
	}
	if req.TransactionID.IsNil() {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}
	if err := legality.CheckScopes(models.ActionCreate, requestcontext.Scopes(ctx)); err != nil {
		return models.Event{}, err
	}

	now := requestcontext.Now(ctx)
	event := models.Event{
		ID:        id.NewEventID(),
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
		Actions: []models.Action{{
			ID:                id.NewActionID(),
			Type:              models.ActionCreate,
			Status:            models.ActionStatusAccepted,
			CreatedAt:         now,
			CreatedBy:         requestcontext.UserID(ctx),
			CreatedAtLocation: requestcontext.Location(ctx),
			TransactionID:     req.TransactionID,
			Content: map[string]any{
				models.ContentTrackingID: newTrackingID(req.Type),
			},
		}},
	}

	created, err := s.log.CreateEvent(ctx, event)
	if err != nil {
		return models.Event{}, s.mapStoreErr(err)
	}

	// Replay returns the original event; only a fresh create is published.
	if created.ID == event.ID {
		s.publish(ctx, created, created.Actions)
		s.countAccepted(models.ActionCreate)
	} else if s.metrics != nil {
		s.metrics.IdempotentReplays.Inc()
	}

	s.logger.InfoContext(ctx, "event created",
		"event_id", created.ID,
		"event_type", created.Type,
		"request_id", requestcontext.RequestID(ctx),
	)
	return created, nil
}

// Get loads the full event document.
func (s *Service) Get(ctx context.Context, eventID id.EventID) (models.Event, error) {
	event, err := s.log.GetEvent(ctx, eventID)
	if err != nil {
		return models.Event{}, s.mapStoreErr(err)
	}
	return event, nil
}

// GetState loads the event and projects its canonical current state.
func (s *Service) GetState(ctx context.Context, eventID id.EventID) (models.EventState, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return models.EventState{}, err
	}
	return projection.CurrentState(event), nil
}

// Accept runs one action request through the full write path and returns
// the updated event document. Submitting the same transaction id twice
// yields the identical response and exactly one log entry.
func (s *Service) Accept(ctx context.Context, req models.ActionRequest) (models.Event, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "event.accept",
		trace.WithAttributes(
			attribute.String("event.id", req.EventID.String()),
			attribute.String("action.type", string(req.Type)),
		))
	defer span.End()

	event, err := s.accept(ctx, req)
	if err != nil {
		span.RecordError(err)
		if s.metrics != nil {
			s.metrics.ActionsRejected.WithLabelValues(string(req.Type), string(dErrors.CodeOf(err))).Inc()
		}
		return models.Event{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveAccept(start)
	}
	return event, nil
}

func (s *Service) accept(ctx context.Context, req models.ActionRequest) (models.Event, error) {
	if req.TransactionID.IsNil() {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}
	if req.EventID.IsNil() {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "eventId is required")
	}

	event, err := s.log.GetEvent(ctx, req.EventID)
	if err != nil {
		return models.Event{}, s.mapStoreErr(err)
	}

	// Idempotency short-circuit: a transaction id already accepted for this
	// event skips the entire pipeline, including the duplicate search and
	// every side effect, and returns the stored result verbatim.
	if replay, err := s.committed(ctx, req.EventID, req.TransactionID); err != nil {
		return models.Event{}, err
	} else if replay {
		return event, nil
	}

	state := projection.CurrentState(event)
	if err := s.legality.Authorize(ctx, req, event, state); err != nil {
		return models.Event{}, err
	}

	var cfg *eventconfig.Config
	if models.DeclarationBearing(req.Type) {
		cfg, err = s.configs.Get(ctx, event.Type)
		if err != nil {
			return models.Event{}, err
		}
		if err := s.legality.ValidateDeclaration(ctx, cfg, req, state); err != nil {
			return models.Event{}, err
		}
	}

	// Assignment no-ops return success without appending: re-assigning the
	// current holder and unassigning an unassigned event change nothing.
	if req.Type == models.ActionAssign && state.AssignedToUser(*req.AssignedTo) {
		return event, nil
	}
	if req.Type == models.ActionUnassign && !state.Assigned() {
		return event, nil
	}

	action := s.buildAction(ctx, req)
	actions := models.ExpandActions(action)

	if req.Type == models.ActionDeclare {
		duplicateAction, err := s.detectDuplicates(ctx, event, action, cfg)
		if err != nil {
			return models.Event{}, err
		}
		if duplicateAction != nil {
			actions = append(actions, *duplicateAction)
		}
	}

	replayed := false
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.log.GetEventForUpdate(txCtx, req.EventID)
		if err != nil {
			return s.mapStoreErr(err)
		}

		// A concurrent request may have committed between the first check
		// and taking the lock; re-verify both idempotency and legality
		// against the locked state before appending.
		if replay, err := s.committed(txCtx, req.EventID, req.TransactionID); err != nil {
			return err
		} else if replay {
			replayed = true
			return nil
		}
		lockedState := projection.CurrentState(locked)
		if err := s.legality.Authorize(txCtx, req, locked, lockedState); err != nil {
			return err
		}

		if err := s.log.Append(txCtx, req.EventID, actions...); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyApplied) {
				replayed = true
				return nil
			}
			return s.mapStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}

	updated, err := s.log.GetEvent(ctx, req.EventID)
	if err != nil {
		return models.Event{}, s.mapStoreErr(err)
	}

	if replayed {
		if s.metrics != nil {
			s.metrics.IdempotentReplays.Inc()
		}
		return updated, nil
	}

	s.publish(ctx, updated, actions)
	for _, committed := range actions {
		s.countAccepted(committed.Type)
	}
	s.logger.InfoContext(ctx, "action committed",
		"event_id", req.EventID,
		"action", req.Type,
		"appended", len(actions),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// committed reports whether the transaction id is already accepted for the
// event.
func (s *Service) committed(ctx context.Context, eventID id.EventID, txID id.TransactionID) (bool, error) {
	_, err := s.log.FindByTransactionID(ctx, eventID, txID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, s.mapStoreErr(err)
	}
}

func (s *Service) buildAction(ctx context.Context, req models.ActionRequest) models.Action {
	action := models.Action{
		ID:                id.NewActionID(),
		Type:              req.Type,
		Status:            models.ActionStatusAccepted,
		CreatedAt:         requestcontext.Now(ctx),
		CreatedBy:         requestcontext.UserID(ctx),
		CreatedAtLocation: requestcontext.Location(ctx),
		TransactionID:     req.TransactionID,
		Declaration:       req.Declaration.Clone(),
		AssignedTo:        req.AssignedTo,
	}
	if len(req.Content) > 0 {
		action.Content = make(map[string]any, len(req.Content))
		for k, v := range req.Content {
			action.Content[k] = v
		}
	}
	if req.Type == models.ActionRegister {
		if action.Content == nil {
			action.Content = map[string]any{}
		}
		action.Content[models.ContentRegistrationNumber] = newRegistrationNumber(action.CreatedAt)
	}
	return action
}

// detectDuplicates projects the would-be post-declare state and queries the
// configured matching rules. Hits do not reject the DECLARE; they produce a
// DUPLICATE_DETECTED action appended atomically right after it, which flips
// the derived status to duplicate-pending.
func (s *Service) detectDuplicates(ctx context.Context, event models.Event, declare models.Action, cfg *eventconfig.Config) (*models.Action, error) {
	if s.dedup == nil || cfg == nil || len(cfg.DedupRules) == 0 {
		return nil, nil
	}

	wouldBe := event
	wouldBe.Actions = append(append([]models.Action{}, event.Actions...), declare)
	state := projection.CurrentState(wouldBe)

	candidates, err := s.dedup.FindDuplicates(ctx, state, cfg.DedupRules)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.DuplicatesDetected.Inc()
	}
	s.logger.WarnContext(ctx, "duplicate candidates detected",
		"event_id", event.ID,
		"candidates", len(candidates),
	)
	return &models.Action{
		ID:                id.NewActionID(),
		Type:              models.ActionDuplicateDetected,
		Status:            models.ActionStatusAccepted,
		CreatedAt:         declare.CreatedAt,
		CreatedBy:         declare.CreatedBy,
		CreatedAtLocation: declare.CreatedAtLocation,
		TransactionID:     declare.TransactionID + ":duplicate",
		Content: map[string]any{
			models.ContentDuplicates: candidates,
		},
	}, nil
}

func (s *Service) publish(ctx context.Context, event models.Event, actions []models.Action) {
	if s.publisher == nil {
		return
	}
	s.publisher.ActionsCommitted(ctx, event, actions)
}

func (s *Service) countAccepted(action models.ActionType) {
	if s.metrics != nil {
		s.metrics.ActionsAccepted.WithLabelValues(string(action)).Inc()
	}
}

func (s *Service) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "event not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "transaction id already used by another event")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvariantViolation, "event is in an invalid state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "action log failure")
	}
}

// newTrackingID derives a short human-readable tracking id with an event
// type prefix, for example "B7F3A01C2".
func newTrackingID(eventType models.EventType) string {
	prefix := "E"
	switch eventType {
	case models.EventTypeBirth:
		prefix = "B"
	case models.EventTypeDeath:
		prefix = "D"
	case models.EventTypeMarriage:
		prefix = "M"
	}
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + raw[:8]
}

// newRegistrationNumber derives the official registration number assigned at
// REGISTER time. Stored on the action so replays return the same number.
func newRegistrationNumber(now time.Time) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%d%s", now.Year(), raw[:10])
}
