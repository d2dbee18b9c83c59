// Package projection derives the canonical current state of an event from
// its action list. The fold is a pure function: same actions in, same state
// out, with no clock, randomness, or I/O. Callers may recompute it on every
// read.
package projection

import (
	id "civreg/pkg/domain"

	"civreg/internal/event/models"
)

// CurrentState folds the event's actions, oldest first, into the canonical
// EventState snapshot.
//
// Per-field declaration merge is last-write-wins across accepted
// declaration-bearing actions. Workflow status follows the last accepted
// status-bearing action, with one lookback: a DECLARE whose immediate
// successor is DUPLICATE_DETECTED projects as duplicate-pending rather than
// declared (both cases fall out of the transition table directly, since
// DUPLICATE_DETECTED itself is the later status-bearing action).
func CurrentState(event models.Event) models.EventState {
	state := models.EventState{
		ID:          event.ID,
		Type:        event.Type,
		Declaration: models.Declaration{},
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.CreatedAt,
	}

	for _, action := range event.Actions {
		if action.Status != models.ActionStatusAccepted {
			continue
		}
		state.UpdatedAt = action.CreatedAt

		if models.DeclarationBearing(action.Type) {
			for field, value := range action.Declaration {
				state.Declaration[field] = value
			}
		}

		if models.StatusBearing(action.Type) {
			if next, ok := models.NextStatus(state.Status, action.Type); ok {
				state.Status = next
			}
		}

		switch action.Type {
		case models.ActionCreate:
			if tid, ok := action.Content[models.ContentTrackingID].(string); ok {
				state.TrackingID = tid
			}
		case models.ActionRegister:
			if rn, ok := action.Content[models.ContentRegistrationNumber].(string); ok {
				state.RegistrationNumber = rn
			}
		case models.ActionDuplicateDetected:
			state.Duplicates = append(state.Duplicates, candidates(action.Content)...)
		case models.ActionMarkNotDuplicate:
			state.Duplicates = nil
		}
	}

	state.AssignedTo = LastAssignment(event.Actions)
	return state
}

// LastAssignment scans for the most recent accepted ASSIGN or UNASSIGN
// action. An ASSIGN with no later UNASSIGN means the event is currently
// assigned to that user; the inverse means unassigned. This is a simple
// last-write-wins scan, not a counter.
func LastAssignment(actions []models.Action) *id.UserID {
	var assignee *id.UserID
	for _, action := range actions {
		if action.Status != models.ActionStatusAccepted {
			continue
		}
		switch action.Type {
		case models.ActionAssign:
			assignee = action.AssignedTo
		case models.ActionUnassign:
			assignee = nil
		}
	}
	return assignee
}

// candidates decodes duplicate candidate refs from a DUPLICATE_DETECTED
// content payload. Both in-process ([]DuplicateCandidate) and decoded-JSON
// ([]any of maps) shapes are accepted, since actions round-trip through
// jsonb.
func candidates(content map[string]any) []models.DuplicateCandidate {
	raw, ok := content[models.ContentDuplicates]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []models.DuplicateCandidate:
		return v
	case []any:
		out := make([]models.DuplicateCandidate, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			var c models.DuplicateCandidate
			if s, ok := m["id"].(string); ok {
				if eid, err := id.ParseEventID(s); err == nil {
					c.EventID = eid
				}
			}
			if s, ok := m["trackingId"].(string); ok {
				c.TrackingID = s
			}
			out = append(out, c)
		}
		return out
	}
	return nil
}
