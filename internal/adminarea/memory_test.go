package adminarea

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civreg/pkg/domain"
	"civreg/pkg/requestcontext"
)

func mustAreaID(t *testing.T, s string) id.AreaID {
	t.Helper()
	parsed, err := id.ParseAreaID(s)
	require.NoError(t, err)
	return parsed
}

func TestMemorySetAreas(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new areas", func(t *testing.T) {
		store := NewMemory()
		area := Area{ID: mustAreaID(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"), Name: "Central Province"}
		require.NoError(t, store.SetAreas(ctx, []Area{area}))

		got, err := store.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Central Province", got[0].Name)
	})

	t.Run("non-null values win on conflict", func(t *testing.T) {
		store := NewMemory()
		areaID := mustAreaID(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		parentID := mustAreaID(t, "6ba7b811-9dad-11d1-80b4-00c04fd430c8")
		until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, store.SetAreas(ctx, []Area{{
			ID: areaID, ParentID: &parentID, Name: "Central Province",
			ValidUntil: &until, ExternalID: "STAT-001",
		}}))

		// Partial update: only the name arrives; everything else stays.
		require.NoError(t, store.SetAreas(ctx, []Area{{ID: areaID, Name: "Central"}}))

		got, err := store.List(ctx, ListFilter{IDs: []id.AreaID{areaID}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Central", got[0].Name)
		require.NotNil(t, got[0].ParentID)
		assert.Equal(t, parentID, *got[0].ParentID)
		require.NotNil(t, got[0].ValidUntil)
		assert.Equal(t, until, *got[0].ValidUntil)
		assert.Equal(t, "STAT-001", got[0].ExternalID)
	})
}

func TestMemoryLeafIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	// A -> B -> C: only C is a leaf.
	a := mustAreaID(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	b := mustAreaID(t, "6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	c := mustAreaID(t, "6ba7b812-9dad-11d1-80b4-00c04fd430c8")

	require.NoError(t, store.SetAreas(ctx, []Area{
		{ID: a, Name: "Province"},
		{ID: b, ParentID: &a, Name: "District"},
		{ID: c, ParentID: &b, Name: "Ward"},
	}))

	leaves, err := store.LeafIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []id.AreaID{c}, leaves)

	t.Run("adding a child removes the parent from the leaves", func(t *testing.T) {
		d := mustAreaID(t, "6ba7b813-9dad-11d1-80b4-00c04fd430c8")
		require.NoError(t, store.SetAreas(ctx, []Area{{ID: d, ParentID: &c, Name: "Village"}}))

		leaves, err := store.LeafIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []id.AreaID{d}, leaves)
	})
}

func TestMemoryListActiveFilter(t *testing.T) {
	store := NewMemory()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	expired := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	active := Area{ID: mustAreaID(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"), Name: "Active"}
	retired := Area{ID: mustAreaID(t, "6ba7b811-9dad-11d1-80b4-00c04fd430c8"), Name: "Retired", ValidUntil: &expired}
	expiring := Area{ID: mustAreaID(t, "6ba7b812-9dad-11d1-80b4-00c04fd430c8"), Name: "Expiring", ValidUntil: &future}

	require.NoError(t, store.SetAreas(ctx, []Area{active, retired, expiring}))

	isActive := true
	got, err := store.List(ctx, ListFilter{IsActive: &isActive})
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, area := range got {
		names = append(names, area.Name)
	}
	assert.ElementsMatch(t, []string{"Active", "Expiring"}, names)

	isActive = false
	got, err = store.List(ctx, ListFilter{IsActive: &isActive})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Retired", got[0].Name)
}

func TestServiceValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemory(), nil)

	t.Run("rejects a nil area id", func(t *testing.T) {
		err := svc.SetAreas(ctx, []Area{{Name: "No ID"}})
		assert.Error(t, err)
	})

	t.Run("rejects self-parenting", func(t *testing.T) {
		areaID := mustAreaID(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		err := svc.SetAreas(ctx, []Area{{ID: areaID, ParentID: &areaID, Name: "Loop"}})
		assert.Error(t, err)
	})
}

func TestServiceNames(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	svc := NewService(store, nil)

	a := mustAreaID(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	b := mustAreaID(t, "6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, store.SetAreas(ctx, []Area{
		{ID: a, Name: "Central Province"},
		{ID: b, Name: "North District"},
	}))

	names, err := svc.Names(ctx, []id.AreaID{a, b, mustAreaID(t, "6ba7b812-9dad-11d1-80b4-00c04fd430c8")})
	require.NoError(t, err)
	assert.Equal(t, map[id.AreaID]string{
		a: "Central Province",
		b: "North District",
	}, names)

	t.Run("empty input resolves to nothing", func(t *testing.T) {
		names, err := svc.Names(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}
