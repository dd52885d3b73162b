package tiler

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/testutil"
)

func newTiler(t *testing.T) *Tiler {
	t.Helper()
	reg := testutil.Registry(t)
	return New(testutil.Store(t, reg, testutil.Fetcher()))
}

func tileAt(mercX, mercY float64, z maptile.Zoom) maptile.Tile {
	return maptile.At(project.Mercator.ToWGS84(orb.Point{mercX, mercY}), z)
}

func TestTileContainsBuilding(t *testing.T) {
	data, err := newTiler(t).Tile("main_building", tileAt(200, 200, 16))
	require.NoError(t, err)
	require.NotNil(t, data)

	layers, err := mvt.UnmarshalGzipped(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "main_building", layers[0].Name)
	require.Len(t, layers[0].Features, 1)
	assert.Equal(t, "Main Building", layers[0].Features[0].Properties["name"])
}

func TestEmptyTile(t *testing.T) {
	data, err := newTiler(t).Tile("main_building", maptile.New(0, 0, 16))
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestBadTile(t *testing.T) {
	_, err := newTiler(t).Tile("main_building", maptile.New(4, 0, 2))
	assert.ErrorIs(t, err, ErrBadTile)
}

func TestUnloadedLayer(t *testing.T) {
	_, err := newTiler(t).Tile("hall_f1", tileAt(200, 200, 16))
	assert.ErrorIs(t, err, features.ErrNotLoaded)
}
