package adminarea

import (
	"context"
	"log/slog"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// Service fronts the area store with input validation and the name
// resolution used by event display enrichment.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the administrative area service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// SetAreas validates and upserts the given areas.
func (s *Service) SetAreas(ctx context.Context, areas []Area) error {
	for _, area := range areas {
		if area.ID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "area id is required")
		}
		if area.ParentID != nil && *area.ParentID == area.ID {
			return dErrors.Newf(dErrors.CodeValidation, "area %s cannot be its own parent", area.ID)
		}
	}
	if err := s.store.SetAreas(ctx, areas); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store administrative areas")
	}
	s.logger.InfoContext(ctx, "administrative areas upserted", "count", len(areas))
	return nil
}

// LeafIDs returns ids of areas with no administrative-area children.
func (s *Service) LeafIDs(ctx context.Context) ([]id.AreaID, error) {
	leaves, err := s.store.LeafIDs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query leaf areas")
	}
	return leaves, nil
}

// List returns areas matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Area, error) {
	areas, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list administrative areas")
	}
	return areas, nil
}

// Names resolves display names for the given area ids. Unknown ids are
// simply absent from the result.
func (s *Service) Names(ctx context.Context, ids []id.AreaID) (map[id.AreaID]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	areas, err := s.store.List(ctx, ListFilter{IDs: ids})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve area names")
	}
	names := make(map[id.AreaID]string, len(areas))
	for _, area := range areas {
		names[area.ID] = area.Name
	}
	return names, nil
}
