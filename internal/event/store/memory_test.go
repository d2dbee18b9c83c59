package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"

	"civreg/internal/event/models"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newCreateEvent(txID string) models.Event {
	eventID := id.NewEventID()
	return models.Event{
		ID:        eventID,
		Type:      models.EventTypeBirth,
		CreatedAt: testTime,
		Actions: []models.Action{{
			ID:            id.NewActionID(),
			Type:          models.ActionCreate,
			Status:        models.ActionStatusAccepted,
			CreatedAt:     testTime,
			TransactionID: id.TransactionID(txID),
		}},
	}
}

func newAction(t models.ActionType, txID string, at time.Time) models.Action {
	return models.Action{
		ID:            id.NewActionID(),
		Type:          t,
		Status:        models.ActionStatusAccepted,
		CreatedAt:     at,
		TransactionID: id.TransactionID(txID),
	}
}

func TestMemoryCreateEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and returns the event", func(t *testing.T) {
		log := NewMemory()
		created, err := log.CreateEvent(ctx, newCreateEvent("tx-create-1"))
		require.NoError(t, err)
		assert.Len(t, created.Actions, 1)
		assert.Equal(t, models.ActionCreate, created.Actions[0].Type)
	})

	t.Run("replaying the create transaction returns the original event", func(t *testing.T) {
		log := NewMemory()
		first, err := log.CreateEvent(ctx, newCreateEvent("tx-create-2"))
		require.NoError(t, err)

		replay, err := log.CreateEvent(ctx, newCreateEvent("tx-create-2"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, replay.ID, "replay must not create a second event")
	})

	t.Run("rejects an event without a CREATE action", func(t *testing.T) {
		log := NewMemory()
		bad := newCreateEvent("tx-create-3")
		bad.Actions[0].Type = models.ActionDeclare
		_, err := log.CreateEvent(ctx, bad)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}

func TestMemoryAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("appends and bumps updated_at", func(t *testing.T) {
		log := NewMemory()
		created, err := log.CreateEvent(ctx, newCreateEvent("tx-a-1"))
		require.NoError(t, err)

		later := testTime.Add(time.Minute)
		err = log.Append(ctx, created.ID, newAction(models.ActionDeclare, "tx-a-2", later))
		require.NoError(t, err)

		got, err := log.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, got.Actions, 2)
		assert.Equal(t, later, got.UpdatedAt)
	})

	t.Run("replayed transaction id on the same event", func(t *testing.T) {
		log := NewMemory()
		created, err := log.CreateEvent(ctx, newCreateEvent("tx-b-1"))
		require.NoError(t, err)

		err = log.Append(ctx, created.ID, newAction(models.ActionDeclare, "tx-b-2", testTime.Add(time.Minute)))
		require.NoError(t, err)

		err = log.Append(ctx, created.ID, newAction(models.ActionDeclare, "tx-b-2", testTime.Add(2*time.Minute)))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyApplied)

		got, err := log.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, got.Actions, 2, "replay must not duplicate the action")
	})

	t.Run("transaction id committed on another event conflicts", func(t *testing.T) {
		log := NewMemory()
		first, err := log.CreateEvent(ctx, newCreateEvent("tx-c-1"))
		require.NoError(t, err)
		second, err := log.CreateEvent(ctx, newCreateEvent("tx-c-2"))
		require.NoError(t, err)

		err = log.Append(ctx, first.ID, newAction(models.ActionDeclare, "tx-c-3", testTime.Add(time.Minute)))
		require.NoError(t, err)

		err = log.Append(ctx, second.ID, newAction(models.ActionDeclare, "tx-c-3", testTime.Add(time.Minute)))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("a batch with a replayed id commits nothing", func(t *testing.T) {
		log := NewMemory()
		created, err := log.CreateEvent(ctx, newCreateEvent("tx-d-1"))
		require.NoError(t, err)

		err = log.Append(ctx, created.ID, newAction(models.ActionReject, "tx-d-2", testTime.Add(time.Minute)))
		require.NoError(t, err)

		err = log.Append(ctx, created.ID,
			newAction(models.ActionReject, "tx-d-2", testTime.Add(2*time.Minute)),
			newAction(models.ActionUnassign, "tx-d-2:unassign", testTime.Add(2*time.Minute)),
		)
		assert.ErrorIs(t, err, sentinel.ErrAlreadyApplied)

		got, err := log.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, got.Actions, 2, "no part of the failed batch may land")
	})

	t.Run("append to unknown event", func(t *testing.T) {
		log := NewMemory()
		err := log.Append(ctx, id.NewEventID(), newAction(models.ActionDeclare, "tx-e-1", testTime))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestMemoryOrdering(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	created, err := log.CreateEvent(ctx, newCreateEvent("tx-o-1"))
	require.NoError(t, err)

	// Same createdAt: insertion order is the tiebreak.
	same := testTime.Add(time.Minute)
	first := newAction(models.ActionReject, "tx-o-2", same)
	second := newAction(models.ActionUnassign, "tx-o-2:unassign", same)
	require.NoError(t, log.Append(ctx, created.ID, first, second))

	got, err := log.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Actions, 3)
	assert.Equal(t, models.ActionCreate, got.Actions[0].Type)
	assert.Equal(t, models.ActionReject, got.Actions[1].Type)
	assert.Equal(t, models.ActionUnassign, got.Actions[2].Type)
}

func TestMemoryFindByTransactionID(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	created, err := log.CreateEvent(ctx, newCreateEvent("tx-f-1"))
	require.NoError(t, err)

	action, err := log.FindByTransactionID(ctx, created.ID, "tx-f-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreate, action.Type)

	_, err = log.FindByTransactionID(ctx, created.ID, "tx-missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemorySnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	created, err := log.CreateEvent(ctx, newCreateEvent("tx-s-1"))
	require.NoError(t, err)

	got, err := log.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	got.Actions[0].Type = models.ActionReject

	again, err := log.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreate, again.Actions[0].Type, "caller mutation must not reach the log")
}
