package legality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/requestcontext"

	"civreg/internal/documents"
	"civreg/internal/event/models"
	"civreg/internal/eventconfig"
)

var (
	alice = mustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	bob   = mustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
)

func mustParse(s string) id.UserID {
	parsed, err := id.ParseUserID(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func callerCtx(user id.UserID, scopes ...string) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), user)
	return requestcontext.WithScopes(ctx, scopes)
}

func declaredEvent() (models.Event, models.EventState) {
	event := models.Event{ID: id.NewEventID(), Type: models.EventTypeBirth}
	state := models.EventState{
		ID:          event.ID,
		Type:        event.Type,
		Status:      models.StatusDeclared,
		Declaration: models.Declaration{},
	}
	return event, state
}

func TestCheckScopes(t *testing.T) {
	t.Run("grants on any matching scope", func(t *testing.T) {
		err := CheckScopes(models.ActionReject, []string{ScopeRegister})
		assert.NoError(t, err)
	})

	t.Run("rejects missing scope", func(t *testing.T) {
		err := CheckScopes(models.ActionValidate, []string{ScopeDeclare})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("system-only actions are never accepted from callers", func(t *testing.T) {
		err := CheckScopes(models.ActionDuplicateDetected, []string{
			ScopeDeclare, ScopeValidate, ScopeRegister, ScopeCorrect,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown action types are forbidden", func(t *testing.T) {
		err := CheckScopes(models.ActionType("DROP_TABLE"), []string{ScopeRegister})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestAuthorize_EventTypeMismatch(t *testing.T) {
	checker := NewChecker()
	event, state := declaredEvent()
	state.AssignedTo = &alice

	req := models.ActionRequest{
		EventID:   event.ID,
		Type:      models.ActionValidate,
		EventType: models.EventTypeDeath,
	}
	err := checker.Authorize(callerCtx(alice, ScopeValidate), req, event, state)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestAuthorize_Assignment(t *testing.T) {
	checker := NewChecker()

	t.Run("mutating action requires assignment", func(t *testing.T) {
		event, state := declaredEvent()
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionValidate}
		err := checker.Authorize(callerCtx(alice, ScopeValidate), req, event, state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("assignment must belong to the caller", func(t *testing.T) {
		event, state := declaredEvent()
		state.AssignedTo = &bob
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionValidate}
		err := checker.Authorize(callerCtx(alice, ScopeValidate), req, event, state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("assignee may act", func(t *testing.T) {
		event, state := declaredEvent()
		state.AssignedTo = &alice
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionValidate}
		err := checker.Authorize(callerCtx(alice, ScopeValidate), req, event, state)
		assert.NoError(t, err)
	})

	t.Run("assign to an already-assigned event conflicts", func(t *testing.T) {
		event, state := declaredEvent()
		state.AssignedTo = &bob
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionAssign, AssignedTo: &alice}
		err := checker.Authorize(callerCtx(alice, ScopeDeclare), req, event, state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("re-assign to the same user is allowed", func(t *testing.T) {
		event, state := declaredEvent()
		state.AssignedTo = &alice
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionAssign, AssignedTo: &alice}
		err := checker.Authorize(callerCtx(alice, ScopeDeclare), req, event, state)
		assert.NoError(t, err)
	})

	t.Run("assign requires assignedTo", func(t *testing.T) {
		event, state := declaredEvent()
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionAssign}
		err := checker.Authorize(callerCtx(alice, ScopeDeclare), req, event, state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unassign of someone else's assignment conflicts", func(t *testing.T) {
		event, state := declaredEvent()
		state.AssignedTo = &bob
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionUnassign}
		err := checker.Authorize(callerCtx(alice, ScopeDeclare), req, event, state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unassign of an unassigned event is allowed", func(t *testing.T) {
		event, state := declaredEvent()
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionUnassign}
		err := checker.Authorize(callerCtx(alice, ScopeDeclare), req, event, state)
		assert.NoError(t, err)
	})
}

func TestAuthorize_Transitions(t *testing.T) {
	checker := NewChecker()

	t.Run("illegal transition conflicts", func(t *testing.T) {
		event, state := declaredEvent()
		state.Status = models.StatusRegistered
		state.AssignedTo = &alice
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionValidate}
		err := checker.Authorize(callerCtx(alice, ScopeValidate), req, event, state)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("legal transition passes the full chain", func(t *testing.T) {
		event, state := declaredEvent()
		state.Status = models.StatusValidated
		state.AssignedTo = &alice
		req := models.ActionRequest{EventID: event.ID, Type: models.ActionRegister}
		err := checker.Authorize(callerCtx(alice, ScopeRegister), req, event, state)
		assert.NoError(t, err)
	})
}

func TestValidateDeclaration(t *testing.T) {
	ctx := context.Background()
	cfg, err := eventconfig.Defaults().Get(ctx, models.EventTypeBirth)
	require.NoError(t, err)

	checker := NewChecker()

	t.Run("valid partial declaration on non-declare action", func(t *testing.T) {
		req := models.ActionRequest{
			Type:        models.ActionValidate,
			Declaration: models.Declaration{"child.firstName": "Ada"},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{Declaration: models.Declaration{}})
		assert.NoError(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := models.ActionRequest{
			Type:        models.ActionValidate,
			Declaration: models.Declaration{"child.shoeSize": "37"},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{Declaration: models.Declaration{}})
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "child.shoeSize")
	})

	t.Run("type mismatches are reported together", func(t *testing.T) {
		req := models.ActionRequest{
			Type: models.ActionValidate,
			Declaration: models.Declaration{
				"child.dob":    "first of March",
				"child.gender": "other",
			},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{Declaration: models.Declaration{}})
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "child.dob")
		assert.Contains(t, err.Error(), "child.gender")
	})

	t.Run("declare requires all required fields across merged state", func(t *testing.T) {
		req := models.ActionRequest{
			Type:        models.ActionDeclare,
			Declaration: models.Declaration{"child.dob": "2026-02-14"},
		}
		// firstName already declared earlier; lastName still missing.
		state := models.EventState{Declaration: models.Declaration{"child.firstName": "Ada"}}
		err := checker.ValidateDeclaration(ctx, cfg, req, state)
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "child.lastName")
		assert.NotContains(t, err.Error(), "child.firstName")
	})

	t.Run("declare passes when delta and state cover required fields", func(t *testing.T) {
		req := models.ActionRequest{
			Type: models.ActionDeclare,
			Declaration: models.Declaration{
				"child.lastName": "Lovelace",
				"child.dob":      "2026-02-14",
			},
		}
		state := models.EventState{Declaration: models.Declaration{"child.firstName": "Ada"}}
		err := checker.ValidateDeclaration(ctx, cfg, req, state)
		assert.NoError(t, err)
	})

	t.Run("non declaration-bearing actions skip validation", func(t *testing.T) {
		req := models.ActionRequest{
			Type:        models.ActionReject,
			Declaration: models.Declaration{"child.shoeSize": "37"},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{})
		assert.NoError(t, err)
	})
}

func TestValidateDeclaration_FileReferences(t *testing.T) {
	ctx := context.Background()
	cfg, err := eventconfig.Defaults().Get(ctx, models.EventTypeBirth)
	require.NoError(t, err)

	docs := documents.NewMemory("uploads/birth-cert-1.pdf")
	checker := NewChecker(WithDocuments(docs))

	t.Run("existing reference passes", func(t *testing.T) {
		req := models.ActionRequest{
			Type:        models.ActionValidate,
			Declaration: models.Declaration{"supportingDocument": "uploads/birth-cert-1.pdf"},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{Declaration: models.Declaration{}})
		assert.NoError(t, err)
	})

	t.Run("missing reference fails validation", func(t *testing.T) {
		req := models.ActionRequest{
			Type:        models.ActionValidate,
			Declaration: models.Declaration{"supportingDocument": "uploads/nope.pdf"},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{Declaration: models.Declaration{}})
		require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "supportingDocument")
	})
}

func TestValidateDeclaration_DateParsing(t *testing.T) {
	ctx := context.Background()
	cfg, err := eventconfig.Defaults().Get(ctx, models.EventTypeBirth)
	require.NoError(t, err)
	checker := NewChecker()

	for _, tc := range []struct {
		value string
		valid bool
	}{
		{"2026-02-14", true},
		{"2026-2-14", false},
		{"14-02-2026", false},
		{"", false},
	} {
		req := models.ActionRequest{
			Type:        models.ActionValidate,
			Declaration: models.Declaration{"child.dob": tc.value},
		}
		err := checker.ValidateDeclaration(ctx, cfg, req, models.EventState{Declaration: models.Declaration{}})
		if tc.valid {
			assert.NoError(t, err, "value %q", tc.value)
		} else {
			assert.Error(t, err, "value %q", tc.value)
		}
	}
}
