// Package domain holds typed identifiers and small domain primitives shared
// across modules. Typed uuid wrappers make cross-wiring of ids a compile
// error instead of a runtime bug.
package domain

import (
	"github.com/google/uuid"

	dErrors "civreg/pkg/domain-errors"
)

// EventID identifies one civil-registration case.
type EventID uuid.UUID

// ActionID identifies one appended action.
type ActionID uuid.UUID

// UserID identifies an authenticated actor.
type UserID uuid.UUID

// AreaID identifies a node in the administrative hierarchy.
type AreaID uuid.UUID

func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id ActionID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id AreaID) String() string   { return uuid.UUID(id).String() }

func (id EventID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AreaID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// NewEventID returns a fresh random event id.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewActionID returns a fresh random action id.
func NewActionID() ActionID { return ActionID(uuid.New()) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid id: %s", s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be nil")
	}
	return u, nil
}

// ParseEventID validates and returns an EventID.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s)
	return EventID(u), err
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

// ParseAreaID validates and returns an AreaID.
func ParseAreaID(s string) (AreaID, error) {
	u, err := parseUUID(s)
	return AreaID(u), err
}

// TransactionID is the client-supplied idempotency key scoping one action
// request. It is opaque to the core; uniqueness is enforced per event.
type TransactionID string

func (t TransactionID) String() string { return string(t) }
func (t TransactionID) IsNil() bool    { return t == "" }
