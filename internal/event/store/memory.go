package store

import (
	"context"
	"sort"
	"sync"

	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"

	"civreg/internal/event/models"
)

// Memory is an in-process ActionLog used by unit tests and local mode. It
// mirrors the Postgres semantics: global transaction-id uniqueness, ordered
// listing, append-only history.
type Memory struct {
	mu     sync.RWMutex
	events map[id.EventID]*memoryEvent
	// txIndex maps every committed transaction id to its owning event, so a
	// replayed id on another event is rejected as a conflict.
	txIndex map[id.TransactionID]id.EventID
}

type memoryEvent struct {
	event   models.Event
	actions []models.Action
}

// NewMemory returns an empty in-memory action log.
func NewMemory() *Memory {
	return &Memory{
		events:  make(map[id.EventID]*memoryEvent),
		txIndex: make(map[id.TransactionID]id.EventID),
	}
}

func (m *Memory) CreateEvent(_ context.Context, event models.Event) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(event.Actions) != 1 || event.Actions[0].Type != models.ActionCreate {
		return models.Event{}, sentinel.ErrInvalidState
	}
	create := event.Actions[0]

	if owner, ok := m.txIndex[create.TransactionID]; ok {
		if existing, found := m.events[owner]; found {
			return m.snapshot(existing), nil
		}
		return models.Event{}, sentinel.ErrConflict
	}
	if _, exists := m.events[event.ID]; exists {
		return models.Event{}, sentinel.ErrConflict
	}

	stored := &memoryEvent{
		event:   models.Event{ID: event.ID, Type: event.Type, CreatedAt: event.CreatedAt, UpdatedAt: event.CreatedAt},
		actions: []models.Action{create},
	}
	m.events[event.ID] = stored
	m.txIndex[create.TransactionID] = event.ID
	return m.snapshot(stored), nil
}

func (m *Memory) GetEvent(_ context.Context, eventID id.EventID) (models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.events[eventID]
	if !ok {
		return models.Event{}, sentinel.ErrNotFound
	}
	return m.snapshot(stored), nil
}

// GetEventForUpdate behaves like GetEvent; atomicity for the memory
// implementation comes from the MemoryTx runner serializing whole write
// operations.
func (m *Memory) GetEventForUpdate(ctx context.Context, eventID id.EventID) (models.Event, error) {
	return m.GetEvent(ctx, eventID)
}

func (m *Memory) FindByTransactionID(_ context.Context, eventID id.EventID, txID id.TransactionID) (*models.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	for i := range stored.actions {
		if stored.actions[i].TransactionID == txID {
			action := stored.actions[i]
			return &action, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *Memory) Append(_ context.Context, eventID id.EventID, actions ...models.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}

	// Validate the whole batch before touching the log so a partial batch is
	// never committed.
	for _, action := range actions {
		if owner, committed := m.txIndex[action.TransactionID]; committed {
			if owner == eventID {
				return sentinel.ErrAlreadyApplied
			}
			return sentinel.ErrConflict
		}
	}

	for _, action := range actions {
		stored.actions = append(stored.actions, action)
		m.txIndex[action.TransactionID] = eventID
		if action.CreatedAt.After(stored.event.UpdatedAt) {
			stored.event.UpdatedAt = action.CreatedAt
		}
	}
	return nil
}

// snapshot copies the stored event with actions ordered by createdAt,
// insertion order as tiebreak. Callers own the returned slice.
func (m *Memory) snapshot(stored *memoryEvent) models.Event {
	event := stored.event
	event.Actions = make([]models.Action, len(stored.actions))
	copy(event.Actions, stored.actions)
	sort.SliceStable(event.Actions, func(i, j int) bool {
		return event.Actions[i].CreatedAt.Before(event.Actions[j].CreatedAt)
	})
	return event
}

// MemoryTx serializes write operations against a Memory log. It stands in
// for a database transaction in unit tests and local mode.
type MemoryTx struct {
	mu sync.Mutex
}

// NewMemoryTx returns a mutex-backed TxRunner.
func NewMemoryTx() *MemoryTx { return &MemoryTx{} }

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
