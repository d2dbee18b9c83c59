package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
	"civreg/pkg/platform/tx"

	"civreg/internal/event/models"
)

// uniqueViolation is the Postgres error code for unique constraint breaks.
const uniqueViolation = "23505"

// Postgres persists events and actions in PostgreSQL. Declarations and
// content payloads are stored as jsonb; a bigserial seq column is the
// insertion-order tiebreak for equal createdAt timestamps. A global unique
// index on transaction_id enforces at-most-one committed action per id.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed action log.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateEvent(ctx context.Context, event models.Event) (models.Event, error) {
	if len(event.Actions) != 1 || event.Actions[0].Type != models.ActionCreate {
		return models.Event{}, sentinel.ErrInvalidState
	}
	create := event.Actions[0]

	q := tx.QuerierFrom(ctx, s.db)

	// Replay check first: the same CREATE transaction id returns the event
	// it originally created, regardless of which instance handled it.
	var existingEventID uuid.UUID
	err := q.QueryRowContext(ctx,
		`SELECT event_id FROM actions WHERE transaction_id = $1`,
		string(create.TransactionID),
	).Scan(&existingEventID)
	switch {
	case err == nil:
		return s.GetEvent(ctx, id.EventID(existingEventID))
	case !errors.Is(err, sql.ErrNoRows):
		return models.Event{}, fmt.Errorf("check create transaction: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO events (id, event_type, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		uuid.UUID(event.ID), string(event.Type), event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Event{}, sentinel.ErrConflict
		}
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}

	if err := s.insertAction(ctx, q, event.ID, create); err != nil {
		// A concurrent replay of the same CREATE can win the insert race;
		// resolve it through the transaction id like the initial check.
		if errors.Is(err, sentinel.ErrAlreadyApplied) || errors.Is(err, sentinel.ErrConflict) {
			var winner uuid.UUID
			scanErr := q.QueryRowContext(ctx,
				`SELECT event_id FROM actions WHERE transaction_id = $1`,
				string(create.TransactionID),
			).Scan(&winner)
			if scanErr == nil {
				return s.GetEvent(ctx, id.EventID(winner))
			}
		}
		return models.Event{}, err
	}
	return s.GetEvent(ctx, event.ID)
}

func (s *Postgres) GetEvent(ctx context.Context, eventID id.EventID) (models.Event, error) {
	return s.getEvent(ctx, eventID, false)
}

func (s *Postgres) GetEventForUpdate(ctx context.Context, eventID id.EventID) (models.Event, error) {
	return s.getEvent(ctx, eventID, true)
}

func (s *Postgres) getEvent(ctx context.Context, eventID id.EventID, forUpdate bool) (models.Event, error) {
	q := tx.QuerierFrom(ctx, s.db)

	query := `SELECT id, event_type, created_at, updated_at FROM events WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var event models.Event
	var eventUUID uuid.UUID
	var eventType string
	err := q.QueryRowContext(ctx, query, uuid.UUID(eventID)).
		Scan(&eventUUID, &eventType, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Event{}, sentinel.ErrNotFound
		}
		return models.Event{}, fmt.Errorf("load event: %w", err)
	}
	event.ID = id.EventID(eventUUID)
	event.Type = models.EventType(eventType)

	actions, err := s.listActions(ctx, q, eventID)
	if err != nil {
		return models.Event{}, err
	}
	event.Actions = actions
	return event, nil
}

func (s *Postgres) FindByTransactionID(ctx context.Context, eventID id.EventID, txID id.TransactionID) (*models.Action, error) {
	q := tx.QuerierFrom(ctx, s.db)

	rows, err := q.QueryContext(ctx, `
		SELECT id, action_type, status, created_at, created_by, created_at_location,
		       transaction_id, declaration, assigned_to, content
		FROM actions
		WHERE event_id = $1 AND transaction_id = $2`,
		uuid.UUID(eventID), string(txID),
	)
	if err != nil {
		return nil, fmt.Errorf("find action by transaction id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find action by transaction id: %w", err)
		}
		return nil, sentinel.ErrNotFound
	}
	action, err := scanAction(rows)
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (s *Postgres) Append(ctx context.Context, eventID id.EventID, actions ...models.Action) error {
	q := tx.QuerierFrom(ctx, s.db)

	var latest time.Time
	for _, action := range actions {
		if err := s.insertAction(ctx, q, eventID, action); err != nil {
			return err
		}
		if action.CreatedAt.After(latest) {
			latest = action.CreatedAt
		}
	}

	_, err := q.ExecContext(ctx,
		`UPDATE events SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
		uuid.UUID(eventID), latest,
	)
	if err != nil {
		return fmt.Errorf("bump event updated_at: %w", err)
	}
	return nil
}

func (s *Postgres) insertAction(ctx context.Context, q tx.Querier, eventID id.EventID, action models.Action) error {
	declaration, err := marshalMap(map[string]any(action.Declaration))
	if err != nil {
		return fmt.Errorf("marshal declaration: %w", err)
	}
	content, err := marshalMap(action.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO actions (id, event_id, action_type, status, created_at, created_by,
		                     created_at_location, transaction_id, declaration, assigned_to, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(action.ID), uuid.UUID(eventID), string(action.Type), string(action.Status),
		action.CreatedAt, uuid.UUID(action.CreatedBy), nullUUID(uuid.UUID(action.CreatedAtLocation)),
		string(action.TransactionID), declaration, nullUserID(action.AssignedTo), content,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.classifyTransactionConflict(ctx, q, eventID, action.TransactionID)
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// classifyTransactionConflict distinguishes an idempotent replay (same event
// already holds this transaction id) from a genuine conflict (the id is
// committed on another event).
func (s *Postgres) classifyTransactionConflict(ctx context.Context, q tx.Querier, eventID id.EventID, txID id.TransactionID) error {
	var owner uuid.UUID
	err := q.QueryRowContext(ctx,
		`SELECT event_id FROM actions WHERE transaction_id = $1`, string(txID),
	).Scan(&owner)
	if err != nil {
		return fmt.Errorf("classify transaction conflict: %w", err)
	}
	if id.EventID(owner) == eventID {
		return sentinel.ErrAlreadyApplied
	}
	return sentinel.ErrConflict
}

func (s *Postgres) listActions(ctx context.Context, q tx.Querier, eventID id.EventID) ([]models.Action, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, action_type, status, created_at, created_by, created_at_location,
		       transaction_id, declaration, assigned_to, content
		FROM actions
		WHERE event_id = $1
		ORDER BY created_at, seq`,
		uuid.UUID(eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

func scanAction(rows *sql.Rows) (models.Action, error) {
	var action models.Action
	var actionID, createdBy uuid.UUID
	var actionType, status, txID string
	var location, assignedTo uuid.NullUUID
	var declaration, content []byte

	err := rows.Scan(&actionID, &actionType, &status, &action.CreatedAt, &createdBy,
		&location, &txID, &declaration, &assignedTo, &content)
	if err != nil {
		return models.Action{}, fmt.Errorf("scan action: %w", err)
	}

	action.ID = id.ActionID(actionID)
	action.Type = models.ActionType(actionType)
	action.Status = models.ActionStatus(status)
	action.CreatedBy = id.UserID(createdBy)
	action.TransactionID = id.TransactionID(txID)
	if location.Valid {
		action.CreatedAtLocation = id.AreaID(location.UUID)
	}
	if assignedTo.Valid {
		user := id.UserID(assignedTo.UUID)
		action.AssignedTo = &user
	}
	if len(declaration) > 0 {
		if err := json.Unmarshal(declaration, &action.Declaration); err != nil {
			return models.Action{}, fmt.Errorf("unmarshal declaration: %w", err)
		}
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &action.Content); err != nil {
			return models.Action{}, fmt.Errorf("unmarshal content: %w", err)
		}
	}
	return action, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	if u == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: u, Valid: true}
}

func nullUserID(user *id.UserID) uuid.NullUUID {
	if user == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*user), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresTx runs fn inside a database transaction threaded through the
// context, so store calls made by fn share one atomic unit with the event
// row locked by GetEventForUpdate.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

const defaultTxTimeout = 5 * time.Second

// NewPostgresTx returns a TxRunner over db.
func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db, timeout: defaultTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	dbTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		return err
	}
	return dbTx.Commit()
}
