// Package store persists the append-only action log. Implementations must
// never mutate or reorder committed actions; idempotency is keyed by the
// client-supplied transaction id.
package store

import (
	"context"

	id "civreg/pkg/domain"

	"civreg/internal/event/models"
)

// ActionLog is the append-only event log contract.
//
// Semantics required from every implementation:
//   - Append with a transaction id already committed for the same event is an
//     idempotent no-op returning sentinel.ErrAlreadyApplied; the stored
//     action is unchanged.
//   - Append with a transaction id already committed for a *different* event
//     fails with sentinel.ErrConflict.
//   - Actions list oldest first, ordered by createdAt with insertion order
//     as tiebreak.
type ActionLog interface {
	// CreateEvent persists a new event together with its initial CREATE
	// action. Replaying the same CREATE transaction id returns the
	// previously created event.
	CreateEvent(ctx context.Context, event models.Event) (models.Event, error)

	// GetEvent loads an event and its full ordered action list.
	GetEvent(ctx context.Context, eventID id.EventID) (models.Event, error)

	// GetEventForUpdate is GetEvent with the event row locked for the
	// duration of the surrounding transaction, so legality and assignment
	// re-verification and the append happen as one atomic unit.
	GetEventForUpdate(ctx context.Context, eventID id.EventID) (models.Event, error)

	// FindByTransactionID returns the committed action for the given
	// (eventID, transactionID), or sentinel.ErrNotFound.
	FindByTransactionID(ctx context.Context, eventID id.EventID, txID id.TransactionID) (*models.Action, error)

	// Append commits one or more actions atomically, in order.
	Append(ctx context.Context, eventID id.EventID, actions ...models.Action) error
}

// TxRunner executes fn atomically with respect to the action log. The
// Postgres implementation opens a database transaction and threads it
// through the context; the in-memory implementation serializes on a mutex.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
