package eventconfig

import (
	"context"

	dErrors "civreg/pkg/domain-errors"

	"civreg/internal/event/models"
)

// Static serves configuration from a fixed in-memory set. Used by tests and
// by local mode when no configuration service is deployed.
type Static struct {
	configs map[models.EventType]*Config
}

// NewStatic builds a provider over the given configs.
func NewStatic(configs ...*Config) *Static {
	m := make(map[models.EventType]*Config, len(configs))
	for _, cfg := range configs {
		m[cfg.EventType] = cfg
	}
	return &Static{configs: m}
}

func (s *Static) Get(_ context.Context, eventType models.EventType) (*Config, error) {
	cfg, ok := s.configs[eventType]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no configuration for event type %q", eventType)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration set for the three vital event
// types. Field ids follow the declaration form schema naming.
func Defaults() *Static {
	return NewStatic(
		&Config{
			EventType: models.EventTypeBirth,
			Fields: []Field{
				{ID: "child.firstName", Type: FieldText, Required: true},
				{ID: "child.lastName", Type: FieldText, Required: true},
				{ID: "child.dob", Type: FieldDate, Required: true},
				{ID: "child.gender", Type: FieldSelect, Options: []string{"male", "female", "unknown"}},
				{ID: "child.placeOfBirth", Type: FieldLocation},
				{ID: "mother.firstName", Type: FieldText},
				{ID: "mother.lastName", Type: FieldText},
				{ID: "mother.nationalId", Type: FieldText},
				{ID: "informant.relation", Type: FieldText},
				{ID: "supportingDocument", Type: FieldFile},
			},
			DedupRules: []MatchRule{
				{Field: "child.firstName", Strategy: MatchFuzzy},
				{Field: "child.lastName", Strategy: MatchFuzzy},
				{Field: "child.dob", Strategy: MatchDateRange, WithinDays: 30},
				{Field: "mother.nationalId", Strategy: MatchExact},
			},
		},
		&Config{
			EventType: models.EventTypeDeath,
			Fields: []Field{
				{ID: "deceased.firstName", Type: FieldText, Required: true},
				{ID: "deceased.lastName", Type: FieldText, Required: true},
				{ID: "deceased.nationalId", Type: FieldText},
				{ID: "deceased.dod", Type: FieldDate, Required: true},
				{ID: "deceased.placeOfDeath", Type: FieldLocation},
				{ID: "cause", Type: FieldSelect, Options: []string{"natural", "accident", "homicide", "suicide", "undetermined"}},
				{ID: "deathCertificate", Type: FieldFile},
			},
			DedupRules: []MatchRule{
				{Field: "deceased.nationalId", Strategy: MatchExact},
				{Field: "deceased.lastName", Strategy: MatchFuzzy},
				{Field: "deceased.dod", Strategy: MatchDateRange, WithinDays: 7},
			},
		},
		&Config{
			EventType: models.EventTypeMarriage,
			Fields: []Field{
				{ID: "groom.firstName", Type: FieldText, Required: true},
				{ID: "groom.lastName", Type: FieldText, Required: true},
				{ID: "bride.firstName", Type: FieldText, Required: true},
				{ID: "bride.lastName", Type: FieldText, Required: true},
				{ID: "marriage.date", Type: FieldDate, Required: true},
				{ID: "marriage.place", Type: FieldLocation},
				{ID: "marriageNotice", Type: FieldFile},
			},
			DedupRules: []MatchRule{
				{Field: "groom.lastName", Strategy: MatchFuzzy},
				{Field: "bride.lastName", Strategy: MatchFuzzy},
				{Field: "marriage.date", Strategy: MatchDateRange, WithinDays: 2},
			},
		},
	)
}
