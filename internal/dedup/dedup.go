// Package dedup detects likely-duplicate records before a declaration is
// finalized. It translates an event type's field-level matching rules into
// a search query and asks the search collaborator for near matches.
package dedup

import (
	"context"
	"fmt"
	"time"

	dErrors "civreg/pkg/domain-errors"

	"civreg/internal/event/models"
	"civreg/internal/eventconfig"
	"civreg/internal/search"
)

const defaultSearchTimeout = 3 * time.Second

// Checker runs duplicate detection against the search collaborator.
type Checker struct {
	search  search.Client
	timeout time.Duration
}

// NewChecker constructs a Checker. timeout bounds each search call; zero
// selects the default.
func NewChecker(client search.Client, timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = defaultSearchTimeout
	}
	return &Checker{search: client, timeout: timeout}
}

// FindDuplicates projects the would-be post-declare state into a query and
// returns duplicate candidates. An empty rule set or a state missing every
// rule field yields no query and no candidates. Search failures and
// timeouts propagate as retryable upstream errors: the declaration must not
// be accepted with the duplicate check silently skipped.
func (c *Checker) FindDuplicates(ctx context.Context, state models.EventState, rules []eventconfig.MatchRule) ([]models.DuplicateCandidate, error) {
	query, ok := BuildQuery(state, rules)
	if !ok {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hits, err := c.search.Search(ctx, query)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "duplicate search timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "duplicate search failed")
	}

	candidates := make([]models.DuplicateCandidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, models.DuplicateCandidate{
			EventID:    hit.EventID,
			TrackingID: hit.TrackingID,
		})
	}
	return candidates, nil
}

// BuildQuery maps the configured rules onto the projected declaration. Rules
// whose field is absent from the declaration are skipped; ok is false when
// nothing remains to match on.
func BuildQuery(state models.EventState, rules []eventconfig.MatchRule) (search.Query, bool) {
	query := search.Query{
		EventType: state.Type,
		Exclude:   state.ID,
	}

	for _, rule := range rules {
		raw, present := state.Declaration[rule.Field]
		if !present {
			continue
		}
		value := fmt.Sprintf("%v", raw)
		if value == "" {
			continue
		}

		switch rule.Strategy {
		case eventconfig.MatchExact:
			query.Clauses = append(query.Clauses, search.Clause{
				Field: rule.Field,
				Kind:  search.ClauseTerm,
				Value: value,
			})
		case eventconfig.MatchFuzzy:
			query.Clauses = append(query.Clauses, search.Clause{
				Field: rule.Field,
				Kind:  search.ClauseFuzzy,
				Value: value,
			})
		case eventconfig.MatchDateRange:
			date, err := time.Parse("2006-01-02", value)
			if err != nil {
				continue
			}
			days := rule.WithinDays
			query.Clauses = append(query.Clauses, search.Clause{
				Field: rule.Field,
				Kind:  search.ClauseDateRange,
				From:  date.AddDate(0, 0, -days),
				To:    date.AddDate(0, 0, days),
			})
		}
	}

	return query, len(query.Clauses) > 0
}
