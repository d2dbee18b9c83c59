package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	id "civreg/pkg/domain"
)

// Memory is an in-process search index used by tests and local mode. Its
// matching is deliberately naive but mirrors the collaborator's contract:
// term equality, small-edit-distance fuzzy matching, and inclusive date
// ranges, all clauses required.
type Memory struct {
	mu      sync.RWMutex
	records map[id.EventID]Record
}

// NewMemory returns an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{records: make(map[id.EventID]Record)}
}

func (m *Memory) Search(_ context.Context, query Query) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Candidate
	for _, record := range m.records {
		if record.Type != query.EventType || record.EventID == query.Exclude {
			continue
		}
		if matches(record, query.Clauses) {
			out = append(out, Candidate{
				EventID:    record.EventID,
				TrackingID: record.TrackingID,
				Score:      1,
			})
		}
	}
	return out, nil
}

func (m *Memory) Index(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.EventID] = record
	return nil
}

func (m *Memory) Delete(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, eventID)
	return nil
}

func matches(record Record, clauses []Clause) bool {
	if len(clauses) == 0 {
		return false
	}
	for _, clause := range clauses {
		raw, ok := record.Declaration[clause.Field]
		if !ok {
			return false
		}
		value := fmt.Sprintf("%v", raw)
		switch clause.Kind {
		case ClauseTerm:
			if !strings.EqualFold(value, clause.Value) {
				return false
			}
		case ClauseFuzzy:
			if !fuzzyMatch(value, clause.Value) {
				return false
			}
		case ClauseDateRange:
			date, err := time.Parse("2006-01-02", value)
			if err != nil {
				return false
			}
			if date.Before(clause.From) || date.After(clause.To) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// fuzzyMatch accepts values within a small edit distance, scaled to the
// value length, approximating the collaborator's name-similarity matching.
func fuzzyMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	maxEdits := 1
	if len(b) >= 6 {
		maxEdits = 2
	}
	return levenshtein(a, b) <= maxEdits
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
