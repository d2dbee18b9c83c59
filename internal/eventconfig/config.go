// Package eventconfig fetches and caches per-event-type configuration: the
// declaration form schema, deduplication matching rules, and declared
// scopes. Configuration is owned by an external service; this package is the
// read path with an explicitly injected cache (no package-level globals).
package eventconfig

import (
	"context"

	"civreg/internal/event/models"
)

// FieldType classifies a declaration form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldDate     FieldType = "date"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldFile     FieldType = "file"
	FieldLocation FieldType = "location"
)

// Field is one declaration form field definition.
type Field struct {
	// ID is the declaration map key, for example "child.firstName".
	ID   string    `json:"id"`
	Type FieldType `json:"type"`
	// Required fields must be present when the event is declared.
	Required bool `json:"required"`
	// Options restricts select fields to a fixed value set.
	Options []string `json:"options,omitempty"`
}

// MatchStrategy selects how a deduplication rule compares a field.
type MatchStrategy string

const (
	// MatchExact requires an exact term match.
	MatchExact MatchStrategy = "exact"
	// MatchFuzzy allows near matches (name similarity).
	MatchFuzzy MatchStrategy = "fuzzy"
	// MatchDateRange matches dates within +/- WithinDays of the value.
	MatchDateRange MatchStrategy = "dateRange"
)

// MatchRule is one field-level deduplication rule.
type MatchRule struct {
	Field    string        `json:"field"`
	Strategy MatchStrategy `json:"strategy"`
	// WithinDays bounds dateRange rules; ignored otherwise.
	WithinDays int `json:"withinDays,omitempty"`
}

// Config is the full configuration for one event type.
type Config struct {
	EventType  models.EventType `json:"eventType"`
	Fields     []Field          `json:"fields"`
	DedupRules []MatchRule      `json:"dedupRules"`
}

// FieldByID returns the schema field with the given id.
func (c *Config) FieldByID(fieldID string) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == fieldID {
			return f, true
		}
	}
	return Field{}, false
}

// Provider yields configuration for an event type. Implementations: the HTTP
// client, the TTL cache wrapper, and the static fixture set.
type Provider interface {
	Get(ctx context.Context, eventType models.EventType) (*Config, error)
}
