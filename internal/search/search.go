// Package search defines the port to the external search collaborator: the
// duplicate-candidate lookup used before a declaration completes, and the
// persisted read model the stream indexer maintains.
package search

import (
	"context"
	"time"

	id "civreg/pkg/domain"

	"civreg/internal/event/models"
)

// Record is one indexed event snapshot in the read model.
type Record struct {
	EventID     id.EventID         `json:"id"`
	Type        models.EventType   `json:"type"`
	Status      models.EventStatus `json:"status"`
	TrackingID  string             `json:"trackingId"`
	Declaration models.Declaration `json:"declaration"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ClauseKind selects the comparison a query clause performs.
type ClauseKind string

const (
	// ClauseTerm is an exact term match.
	ClauseTerm ClauseKind = "term"
	// ClauseFuzzy is a similarity match on text values.
	ClauseFuzzy ClauseKind = "fuzzy"
	// ClauseDateRange matches dates between From and To inclusive.
	ClauseDateRange ClauseKind = "dateRange"
)

// Clause is one field-level condition. All clauses of a query must match
// for a record to count as a duplicate candidate.
type Clause struct {
	Field string     `json:"field"`
	Kind  ClauseKind `json:"kind"`
	Value string     `json:"value,omitempty"`
	From  time.Time  `json:"from,omitzero"`
	To    time.Time  `json:"to,omitzero"`
}

// Query is a duplicate-candidate search scoped to one event type. Exclude
// keeps the record under declaration out of its own results.
type Query struct {
	EventType models.EventType `json:"eventType"`
	Exclude   id.EventID       `json:"exclude"`
	Clauses   []Clause         `json:"clauses"`
}

// Candidate references one likely-duplicate hit.
type Candidate struct {
	EventID    id.EventID `json:"id"`
	TrackingID string     `json:"trackingId"`
	Score      float64    `json:"score"`
}

// Client is the search collaborator contract.
type Client interface {
	// Search returns duplicate candidates for the query, best match first.
	Search(ctx context.Context, query Query) ([]Candidate, error)
	// Index upserts a read-model record by event id.
	Index(ctx context.Context, record Record) error
	// Delete removes a read-model record.
	Delete(ctx context.Context, eventID id.EventID) error
}
