package adminarea

import (
	"context"
	"sort"
	"sync"

	id "civreg/pkg/domain"
	"civreg/pkg/requestcontext"
)

// Memory mirrors the Postgres semantics in-process for unit tests and local
// mode, including the non-null-wins conflict rule.
type Memory struct {
	mu    sync.RWMutex
	areas map[id.AreaID]Area
}

// NewMemory returns an empty in-memory area store.
func NewMemory() *Memory {
	return &Memory{areas: make(map[id.AreaID]Area)}
}

func (m *Memory) SetAreas(_ context.Context, areas []Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, incoming := range areas {
		existing, ok := m.areas[incoming.ID]
		if !ok {
			m.areas[incoming.ID] = incoming
			continue
		}
		if incoming.Name != "" {
			existing.Name = incoming.Name
		}
		if incoming.ParentID != nil {
			existing.ParentID = incoming.ParentID
		}
		if incoming.ValidUntil != nil {
			existing.ValidUntil = incoming.ValidUntil
		}
		if incoming.ExternalID != "" {
			existing.ExternalID = incoming.ExternalID
		}
		m.areas[incoming.ID] = existing
	}
	return nil
}

func (m *Memory) LeafIDs(_ context.Context) ([]id.AreaID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hasChildren := make(map[id.AreaID]bool)
	for _, area := range m.areas {
		if area.ParentID != nil {
			hasChildren[*area.ParentID] = true
		}
	}

	var leaves []id.AreaID
	for areaID := range m.areas {
		if !hasChildren[areaID] {
			leaves = append(leaves, areaID)
		}
	}
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].String() < leaves[j].String()
	})
	return leaves, nil
}

func (m *Memory) List(ctx context.Context, filter ListFilter) ([]Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := requestcontext.Now(ctx)

	var wanted map[id.AreaID]bool
	if len(filter.IDs) > 0 {
		wanted = make(map[id.AreaID]bool, len(filter.IDs))
		for _, areaID := range filter.IDs {
			wanted[areaID] = true
		}
	}

	var out []Area
	for _, area := range m.areas {
		if wanted != nil && !wanted[area.ID] {
			continue
		}
		if filter.IsActive != nil && area.Active(now) != *filter.IsActive {
			continue
		}
		out = append(out, area)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
