package floorplan_test

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/floorplan"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/testutil"
	"github.com/joeblew999/plat-campus/internal/visibility"
)

var hallOutline = orb.Polygon{{{100, 100}, {300, 100}, {300, 300}, {100, 300}, {100, 100}}}

func setup(t *testing.T) (*registry.Registry, registry.FloorPlan, *visibility.Set) {
	t.Helper()
	reg := testutil.Registry(t)
	plan, ok := reg.FloorPlanByID("hall")
	require.True(t, ok)
	return reg, plan, visibility.New(reg)
}

func visibleFloors(vis *visibility.Set, plan registry.FloorPlan) []string {
	var out []string
	for _, f := range plan.Floors {
		if vis.Has(f.LayerName) {
			out = append(out, f.LayerName)
		}
	}
	return out
}

func TestOpenShowsInitialFloor(t *testing.T) {
	_, plan, vis := setup(t)
	var s floorplan.Session
	assert.False(t, s.Active())

	assert.True(t, s.Open(plan, hallOutline, vis))
	assert.Equal(t, []string{"hall_f1"}, visibleFloors(vis, plan))
	f, ok := s.CurrentFloor()
	require.True(t, ok)
	assert.Equal(t, 1, f.Level)
	assert.Equal(t, "hall", s.BuildingID())
}

func TestSetFloorKeepsExactlyOne(t *testing.T) {
	_, plan, vis := setup(t)
	var s floorplan.Session
	s.Open(plan, hallOutline, vis)

	for _, level := range []int{0, 2, 1, 1} {
		require.NoError(t, s.SetFloor(level, vis))
		floors := visibleFloors(vis, plan)
		require.Len(t, floors, 1)
		want, _ := plan.Floor(level)
		assert.Equal(t, want.LayerName, floors[0])
	}
}

func TestSetFloorUnknownLevel(t *testing.T) {
	_, plan, vis := setup(t)
	var s floorplan.Session

	assert.ErrorIs(t, s.SetFloor(1, vis), floorplan.ErrNoFloorPlan)

	s.Open(plan, hallOutline, vis)
	require.NoError(t, s.SetFloor(2, vis))
	assert.ErrorIs(t, s.SetFloor(7, vis), floorplan.ErrUnknownFloor)
	assert.Equal(t, []string{"hall_f2"}, visibleFloors(vis, plan))
}

func TestReopenKeepsCurrentFloor(t *testing.T) {
	_, plan, vis := setup(t)
	var s floorplan.Session
	s.Open(plan, hallOutline, vis)
	require.NoError(t, s.SetFloor(2, vis))

	assert.False(t, s.Open(plan, hallOutline, vis))
	assert.Equal(t, 2, s.Snapshot().CurrentFloor)
	assert.Equal(t, []string{"hall_f2"}, visibleFloors(vis, plan))
}

func TestCloseRemovesFloorsAndRestoresBuildings(t *testing.T) {
	reg, plan, vis := setup(t)
	var s floorplan.Session
	s.Open(plan, hallOutline, vis)
	vis.Toggle("main_building")
	require.False(t, vis.Has("main_building"))

	assert.True(t, s.Close(vis, reg.RestoreOnClose()))
	assert.Empty(t, visibleFloors(vis, plan))
	for _, name := range reg.RestoreOnClose() {
		assert.True(t, vis.Has(name), name)
	}
	assert.False(t, s.Active())
	assert.Equal(t, floorplan.State{}, s.Snapshot())

	assert.False(t, s.Close(vis, reg.RestoreOnClose()))
}

func TestContains(t *testing.T) {
	_, plan, vis := setup(t)
	var s floorplan.Session
	assert.False(t, s.Contains(orb.Point{200, 200}))

	s.Open(plan, hallOutline, vis)
	assert.True(t, s.Contains(orb.Point{200, 200}))
	assert.False(t, s.Contains(orb.Point{600, 200}))
	assert.True(t, s.OwnsLayer("hall_f0"))
	assert.False(t, s.OwnsLayer("main_building"))
}

func TestLoadFloorsIsIdempotent(t *testing.T) {
	reg, plan, _ := setup(t)
	f := testutil.Fetcher()
	store, err := features.NewStore(reg, f, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, floorplan.LoadFloors(ctx, store, plan))
	require.NoError(t, floorplan.LoadFloors(ctx, store, plan))
	for _, fl := range plan.Floors {
		assert.Equal(t, 1, f.Count("data/"+fl.LayerName+".geojson"), fl.LayerName)
	}
}

func TestLoadFloorsContinuesPastFailure(t *testing.T) {
	reg, plan, _ := setup(t)
	f := testutil.Fetcher()
	delete(f.Docs, "data/hall_f0.geojson")
	store, err := features.NewStore(reg, f, zap.NewNop())
	require.NoError(t, err)

	err = floorplan.LoadFloors(context.Background(), store, plan)
	assert.Error(t, err)
	assert.False(t, store.Loaded("hall_f0"))
	assert.True(t, store.Loaded("hall_f1"))
	assert.True(t, store.Loaded("hall_f2"))
}
