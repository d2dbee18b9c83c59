package models

import (
	id "civreg/pkg/domain"
)

// transitionKey is one legal (current status, action) pair.
type transitionKey struct {
	From   EventStatus
	Action ActionType
}

// statusNone is the status of an event with no actions yet. Only CREATE is
// legal from it.
const statusNone EventStatus = ""

// transitions is the explicit legal-transition table: start status × action
// → end status. Anything absent is an illegal transition and is rejected
// with a conflict before any append. Exhaustively covered by tests.
var transitions = map[transitionKey]EventStatus{
	{statusNone, ActionCreate}: StatusInProgress,

	{StatusInProgress, ActionDeclare}: StatusDeclared,

	// DUPLICATE_DETECTED is appended by the write path itself directly after
	// an accepted DECLARE; it is never a client submission.
	{StatusDeclared, ActionDuplicateDetected}: StatusDuplicate,

	{StatusDeclared, ActionValidate}: StatusValidated,
	{StatusDeclared, ActionReject}:   StatusRejected,

	// Duplicate-pending records are resolved by rejecting the record or by
	// marking it as not a duplicate, which returns it to the declared state.
	{StatusDuplicate, ActionReject}:           StatusRejected,
	{StatusDuplicate, ActionMarkNotDuplicate}: StatusDeclared,

	{StatusValidated, ActionRegister}: StatusRegistered,
	{StatusValidated, ActionReject}:   StatusRejected,

	// A rejected declaration can be amended and declared again.
	{StatusRejected, ActionDeclare}: StatusDeclared,

	{StatusRegistered, ActionRequestCorrection}: StatusCorrectionRequested,
	{StatusRegistered, ActionMakeCorrection}:    StatusRegistered,

	{StatusCorrectionRequested, ActionApproveCorrection}: StatusRegistered,
	{StatusCorrectionRequested, ActionRejectCorrection}:  StatusRegistered,
}

// statusBearing marks action types whose acceptance determines the derived
// workflow status. ASSIGN and UNASSIGN never change status.
var statusBearing = map[ActionType]bool{
	ActionCreate:            true,
	ActionDeclare:           true,
	ActionValidate:          true,
	ActionRegister:          true,
	ActionReject:            true,
	ActionDuplicateDetected: true,
	ActionMarkNotDuplicate:  true,
	ActionRequestCorrection: true,
	ActionApproveCorrection: true,
	ActionRejectCorrection:  true,
	ActionMakeCorrection:    true,
}

// StatusBearing reports whether accepting the action type changes the
// derived workflow status.
func StatusBearing(t ActionType) bool { return statusBearing[t] }

// NextStatus returns the status an accepted action of the given type leads
// to from the current status. ok is false for illegal transitions. Non
// status-bearing actions (ASSIGN, UNASSIGN) are legal from any existing
// status and keep the current one.
func NextStatus(current EventStatus, action ActionType) (EventStatus, bool) {
	if action == ActionAssign || action == ActionUnassign {
		if current == statusNone {
			return current, false
		}
		return current, true
	}
	next, ok := transitions[transitionKey{current, action}]
	return next, ok
}

// declarationBearing marks action types whose declaration map merges into
// the running field map during projection.
var declarationBearing = map[ActionType]bool{
	ActionCreate:            true,
	ActionDeclare:           true,
	ActionValidate:          true,
	ActionRegister:          true,
	ActionMakeCorrection:    true,
	ActionApproveCorrection: true,
}

// DeclarationBearing reports whether the action type contributes declaration
// field values to the projected state.
func DeclarationBearing(t ActionType) bool { return declarationBearing[t] }

// unassignSuffix derives the transaction id for the implicit UNASSIGN that
// follows a REJECT. Deriving it from the client transaction id keeps the
// two-action suffix idempotent: a retried REJECT regenerates the same pair.
const unassignSuffix = ":unassign"

// ExpandActions maps one requested action to the full list of actions that
// must be appended atomically. REJECT releases the assignment in the same
// write so the record returns to the unassigned pool; both entries appear in
// the log as separate, independently idempotent actions.
func ExpandActions(action Action) []Action {
	if action.Type != ActionReject {
		return []Action{action}
	}
	unassign := Action{
		ID:                id.NewActionID(),
		Type:              ActionUnassign,
		Status:            ActionStatusAccepted,
		CreatedAt:         action.CreatedAt,
		CreatedBy:         action.CreatedBy,
		CreatedAtLocation: action.CreatedAtLocation,
		TransactionID:     action.TransactionID + unassignSuffix,
	}
	return []Action{action, unassign}
}
