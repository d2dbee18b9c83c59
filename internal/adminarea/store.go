package adminarea

import (
	"context"

	id "civreg/pkg/domain"
)

// Store is the administrative hierarchy persistence contract.
type Store interface {
	// SetAreas upserts areas by id in bounded chunks. On conflict,
	// name/parentId/validUntil/externalId are updated only when the incoming
	// value is non-null; a partial update never blanks a stored value.
	SetAreas(ctx context.Context, areas []Area) error

	// LeafIDs returns ids of areas with no administrative-area children.
	// Children of other kinds (health facilities, offices) live outside this
	// store and do not disqualify an area from being a leaf.
	LeafIDs(ctx context.Context) ([]id.AreaID, error)

	// List returns areas matching the filter.
	List(ctx context.Context, filter ListFilter) ([]Area, error)
}
