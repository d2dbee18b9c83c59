// Package adminarea stores the jurisdictional hierarchy (districts,
// provinces) used for location context. Areas form a tree; rows are soft
// invalidated via validUntil and never hard-deleted, so past registrations
// keep their historical location context.
package adminarea

import (
	"time"

	id "civreg/pkg/domain"
)

// Area is one node in the administrative hierarchy.
type Area struct {
	ID id.AreaID `json:"id"`
	// ParentID is nil for root areas.
	ParentID *id.AreaID `json:"parentId,omitempty"`
	Name     string     `json:"name"`
	// ValidUntil is nil while the area is active.
	ValidUntil *time.Time `json:"validUntil,omitempty"`
	// ExternalID carries the upstream statistical-office identifier.
	ExternalID string `json:"externalId,omitempty"`
}

// Active reports whether the area is valid at the given time.
func (a Area) Active(now time.Time) bool {
	return a.ValidUntil == nil || a.ValidUntil.After(now)
}

// ListFilter narrows List results. Nil/zero members match everything.
type ListFilter struct {
	IDs []id.AreaID
	// IsActive filters on validity at query time when set.
	IsActive *bool
}
