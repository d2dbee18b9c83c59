// Package models defines the event aggregate for civil registration: an
// append-only list of actions per event, plus the derived EventState
// snapshot. History is never mutated or reordered; every fact is a new
// action.
package models

import (
	"time"

	id "civreg/pkg/domain"
)

// EventType identifies the kind of vital event a record registers.
type EventType string

const (
	EventTypeBirth    EventType = "birth"
	EventTypeDeath    EventType = "death"
	EventTypeMarriage EventType = "marriage"
)

// Valid reports whether the event type is one of the registered kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeBirth, EventTypeDeath, EventTypeMarriage:
		return true
	}
	return false
}

// ActionType enumerates the facts that can be appended to an event.
type ActionType string

const (
	ActionCreate            ActionType = "CREATE"
	ActionDeclare           ActionType = "DECLARE"
	ActionValidate          ActionType = "VALIDATE"
	ActionRegister          ActionType = "REGISTER"
	ActionReject            ActionType = "REJECT"
	ActionAssign            ActionType = "ASSIGN"
	ActionUnassign          ActionType = "UNASSIGN"
	ActionDuplicateDetected ActionType = "DUPLICATE_DETECTED"
	ActionMarkNotDuplicate  ActionType = "MARK_NOT_DUPLICATE"
	ActionRequestCorrection ActionType = "REQUEST_CORRECTION"
	ActionApproveCorrection ActionType = "APPROVE_CORRECTION"
	ActionRejectCorrection  ActionType = "REJECT_CORRECTION"
	ActionMakeCorrection    ActionType = "MAKE_CORRECTION"
)

// ActionStatus records how an appended action was resolved.
type ActionStatus string

const (
	ActionStatusRequested ActionStatus = "Requested"
	ActionStatusAccepted  ActionStatus = "Accepted"
	ActionStatusRejected  ActionStatus = "Rejected"
)

// EventStatus is the derived workflow status of an event record.
type EventStatus string

const (
	StatusInProgress          EventStatus = "IN_PROGRESS"
	StatusDeclared            EventStatus = "DECLARED"
	StatusDuplicate           EventStatus = "DUPLICATE"
	StatusValidated           EventStatus = "VALIDATED"
	StatusRegistered          EventStatus = "REGISTERED"
	StatusRejected            EventStatus = "REJECTED"
	StatusCorrectionRequested EventStatus = "CORRECTION_REQUESTED"
)

// Declaration is the partial field-value map contributed by one action.
// Field ids are form-schema keys (for example "child.firstName").
type Declaration map[string]any

// Clone returns a shallow copy so folds never alias caller maps.
func (d Declaration) Clone() Declaration {
	if d == nil {
		return nil
	}
	out := make(Declaration, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// DuplicateCandidate references a likely-duplicate record found by the
// deduplication search.
type DuplicateCandidate struct {
	EventID    id.EventID `json:"id"`
	TrackingID string     `json:"trackingId"`
}

// Content keys used in action payloads.
const (
	ContentTrackingID         = "trackingId"
	ContentRegistrationNumber = "registrationNumber"
	ContentDuplicates         = "duplicates"
	ContentReason             = "reason"
)

// Action is one immutable fact appended to an event.
type Action struct {
	ID                id.ActionID      `json:"id"`
	Type              ActionType       `json:"type"`
	Status            ActionStatus     `json:"status"`
	CreatedAt         time.Time        `json:"createdAt"`
	CreatedBy         id.UserID        `json:"createdBy"`
	CreatedAtLocation id.AreaID        `json:"createdAtLocation"`
	TransactionID     id.TransactionID `json:"transactionId"`
	Declaration       Declaration      `json:"declaration,omitempty"`
	// AssignedTo is set for ASSIGN actions only.
	AssignedTo *id.UserID `json:"assignedTo,omitempty"`
	// Content carries action-specific payload: duplicate candidates, tracking
	// id, registration number, rejection reason.
	Content map[string]any `json:"content,omitempty"`
}

// Event identifies one civil-registration case. Actions are ordered oldest
// first by createdAt with insertion order as tiebreak.
type Event struct {
	ID        id.EventID `json:"id"`
	Type      EventType  `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Actions   []Action   `json:"actions"`
}

// EventState is the canonical projection of an event: merged declaration
// values, workflow status, current assignee, open duplicate references.
// It is recomputed from the action list on every read and never persisted
// as a source of truth.
type EventState struct {
	ID                 id.EventID           `json:"id"`
	Type               EventType            `json:"type"`
	Status             EventStatus          `json:"status"`
	Declaration        Declaration          `json:"declaration"`
	AssignedTo         *id.UserID           `json:"assignedTo,omitempty"`
	TrackingID         string               `json:"trackingId,omitempty"`
	RegistrationNumber string               `json:"registrationNumber,omitempty"`
	Duplicates         []DuplicateCandidate `json:"duplicates,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// Assigned reports whether the event currently has an assignee.
func (s EventState) Assigned() bool { return s.AssignedTo != nil }

// AssignedToUser reports whether the event is currently assigned to user.
func (s EventState) AssignedToUser(user id.UserID) bool {
	return s.AssignedTo != nil && *s.AssignedTo == user
}

// ActionRequest is the input envelope for one action submission, keyed by
// (eventID, actionType, transactionID).
type ActionRequest struct {
	EventID       id.EventID
	TransactionID id.TransactionID
	Type          ActionType
	// EventType is the caller's declared event type; it must match the
	// persisted event's type.
	EventType   EventType
	Declaration Declaration
	Content     map[string]any
	// AssignedTo is required for ASSIGN requests.
	AssignedTo *id.UserID
}
