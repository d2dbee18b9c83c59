// Package legality authorizes and validates an incoming action against
// required scopes, the persisted event type, the current assignment, and the
// legal-transition table, before anything is appended. Failures here never
// partially mutate the log.
package legality

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	dErrors "civreg/pkg/domain-errors"
	id "civreg/pkg/domain"
	"civreg/pkg/requestcontext"

	"civreg/internal/documents"
	"civreg/internal/event/models"
	"civreg/internal/eventconfig"
)

// Scopes granted to callers via their access token.
const (
	ScopeDeclare           = "record.declare"
	ScopeValidate          = "record.validate"
	ScopeRegister          = "record.register"
	ScopeRequestCorrection = "record.request-correction"
	ScopeCorrect           = "record.correct"
)

// ActionScopes maps each action type to its required-scope set; the caller
// needs any one of the listed scopes. An empty set marks a system-appended
// action type that is never accepted from a client.
var ActionScopes = map[models.ActionType][]string{
	models.ActionCreate:   {ScopeDeclare},
	models.ActionDeclare:  {ScopeDeclare},
	models.ActionValidate: {ScopeValidate},
	models.ActionRegister: {ScopeRegister},
	models.ActionReject:   {ScopeValidate, ScopeRegister},

	// Any actor allowed to mutate records can claim or release assignment.
	models.ActionAssign:   {ScopeDeclare, ScopeValidate, ScopeRegister},
	models.ActionUnassign: {ScopeDeclare, ScopeValidate, ScopeRegister},

	models.ActionMarkNotDuplicate:  {ScopeRegister},
	models.ActionRequestCorrection: {ScopeRequestCorrection, ScopeCorrect},
	models.ActionApproveCorrection: {ScopeCorrect},
	models.ActionRejectCorrection:  {ScopeCorrect},
	models.ActionMakeCorrection:    {ScopeCorrect},

	// Appended by the write path after an accepted DECLARE, never submitted.
	models.ActionDuplicateDetected: nil,
}

// assignmentRequired lists the mutating actions that demand the caller hold
// the event's exclusive assignment.
var assignmentRequired = map[models.ActionType]bool{
	models.ActionDeclare:           true,
	models.ActionValidate:          true,
	models.ActionRegister:          true,
	models.ActionReject:            true,
	models.ActionMarkNotDuplicate:  true,
	models.ActionRequestCorrection: true,
	models.ActionApproveCorrection: true,
	models.ActionRejectCorrection:  true,
	models.ActionMakeCorrection:    true,
}

// Checker runs the legality chain. The optional documents service verifies
// that file-typed declaration fields reference stored files.
type Checker struct {
	docs documents.Service
}

// Option configures a Checker.
type Option func(*Checker)

// WithDocuments enables file-reference existence checks.
func WithDocuments(docs documents.Service) Option {
	return func(c *Checker) { c.docs = docs }
}

// NewChecker constructs a Checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorize runs the scope, event-type, assignment, and transition checks
// in order, returning the first failure.
func (c *Checker) Authorize(ctx context.Context, req models.ActionRequest, event models.Event, state models.EventState) error {
	if err := CheckScopes(req.Type, requestcontext.Scopes(ctx)); err != nil {
		return err
	}

	if req.EventType != "" && req.EventType != event.Type {
		return dErrors.Newf(dErrors.CodeConflict,
			"declared event type %q does not match record type %q", req.EventType, event.Type)
	}

	if err := checkAssignment(req, state, requestcontext.UserID(ctx)); err != nil {
		return err
	}

	if _, ok := models.NextStatus(state.Status, req.Type); !ok {
		return dErrors.Newf(dErrors.CodeConflict,
			"action %s is not legal from status %s", req.Type, state.Status)
	}
	return nil
}

// CheckScopes verifies the caller's scopes intersect the action's required
// set.
func CheckScopes(action models.ActionType, granted []string) error {
	required, known := ActionScopes[action]
	if !known || len(required) == 0 {
		return dErrors.Newf(dErrors.CodeForbidden, "action %s cannot be submitted", action)
	}
	for _, need := range required {
		for _, have := range granted {
			if need == have {
				return nil
			}
		}
	}
	return dErrors.Newf(dErrors.CodeForbidden, "missing scope for action %s", action)
}

// checkAssignment enforces the exclusive-assignment rules. Wrong or missing
// assignment is a conflict, not a forbidden: the caller's scopes are fine,
// the record's state is not.
func checkAssignment(req models.ActionRequest, state models.EventState, caller id.UserID) error {
	switch req.Type {
	case models.ActionAssign:
		if req.AssignedTo == nil {
			return dErrors.New(dErrors.CodeValidation, "assign requires assignedTo")
		}
		if state.Assigned() && *state.AssignedTo != *req.AssignedTo {
			return dErrors.New(dErrors.CodeConflict, "event is already assigned to another user")
		}
		return nil
	case models.ActionUnassign:
		// Unassigning an unassigned event is an idempotent no-op; releasing
		// someone else's assignment is not allowed.
		if state.Assigned() && !state.AssignedToUser(caller) {
			return dErrors.New(dErrors.CodeConflict, "event is assigned to another user")
		}
		return nil
	}

	if !assignmentRequired[req.Type] {
		return nil
	}
	if !state.Assigned() {
		return dErrors.Newf(dErrors.CodeConflict, "action %s requires assignment", req.Type)
	}
	if !state.AssignedToUser(caller) {
		return dErrors.New(dErrors.CodeConflict, "event is assigned to another user")
	}
	return nil
}

// ValidateDeclaration checks the action's declaration payload against the
// event type's form schema. On DECLARE the merged state (previous fields
// plus this delta) must additionally contain every required field. All
// offending fields are reported together.
func (c *Checker) ValidateDeclaration(ctx context.Context, cfg *eventconfig.Config, req models.ActionRequest, state models.EventState) error {
	if !models.DeclarationBearing(req.Type) {
		return nil
	}

	invalid := map[string]string{}

	for fieldID, value := range req.Declaration {
		field, known := cfg.FieldByID(fieldID)
		if !known {
			invalid[fieldID] = "unknown field"
			continue
		}
		reason, err := c.checkValue(ctx, field, value)
		if err != nil {
			return err
		}
		if reason != "" {
			invalid[fieldID] = reason
		}
	}

	if req.Type == models.ActionDeclare {
		for _, field := range cfg.Fields {
			if !field.Required {
				continue
			}
			if _, inDelta := req.Declaration[field.ID]; inDelta {
				continue
			}
			if _, inState := state.Declaration[field.ID]; inState {
				continue
			}
			invalid[field.ID] = "required field missing"
		}
	}

	if len(invalid) == 0 {
		return nil
	}

	fields := make([]string, 0, len(invalid))
	for fieldID, reason := range invalid {
		fields = append(fields, fmt.Sprintf("%s (%s)", fieldID, reason))
	}
	sort.Strings(fields)
	return dErrors.Newf(dErrors.CodeValidation, "invalid fields: %s", strings.Join(fields, ", "))
}

func (c *Checker) checkValue(ctx context.Context, field eventconfig.Field, value any) (string, error) {
	switch field.Type {
	case eventconfig.FieldText:
		if _, ok := value.(string); !ok {
			return "expected text", nil
		}
	case eventconfig.FieldDate:
		s, ok := value.(string)
		if !ok {
			return "expected date", nil
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "expected date in YYYY-MM-DD", nil
		}
	case eventconfig.FieldNumber:
		switch value.(type) {
		case int, int64, float64:
		default:
			return "expected number", nil
		}
	case eventconfig.FieldSelect:
		s, ok := value.(string)
		if !ok {
			return "expected option", nil
		}
		for _, option := range field.Options {
			if option == s {
				return "", nil
			}
		}
		return "value not in options", nil
	case eventconfig.FieldLocation:
		s, ok := value.(string)
		if !ok {
			return "expected location id", nil
		}
		if _, err := id.ParseAreaID(s); err != nil {
			return "invalid location id", nil
		}
	case eventconfig.FieldFile:
		ref, ok := value.(string)
		if !ok || ref == "" {
			return "expected file reference", nil
		}
		if c.docs != nil {
			exists, err := c.docs.Exists(ctx, ref)
			if err != nil {
				// Cannot verify the reference without the collaborator; the
				// failure is retryable, not a validation verdict.
				return "", err
			}
			if !exists {
				return "referenced file does not exist", nil
			}
		}
	}
	return "", nil
}
