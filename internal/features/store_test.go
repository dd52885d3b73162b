package features_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/testutil"
)

func newStore(t *testing.T) (*features.Store, *features.MapFetcher) {
	t.Helper()
	reg := testutil.Registry(t)
	f := testutil.Fetcher()
	s, err := features.NewStore(reg, f, zap.NewNop())
	require.NoError(t, err)
	return s, f
}

func TestLoadTagsAndIDs(t *testing.T) {
	s, _ := newStore(t)
	n, err := s.Load(context.Background(), "atm")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	feats, err := s.Features("atm")
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, "atm_0", feats[0].ID)
	assert.Equal(t, "atm", feats[0].Layer)
	assert.Equal(t, registry.CategoryPOI, feats[0].Category)
	assert.Equal(t, "Campus ATM", feats[0].Name())
}

func TestTypedProperties(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Load(context.Background(), "main_building")
	require.NoError(t, err)

	f, ok := s.Feature("main_building", "main")
	require.True(t, ok)
	assert.Equal(t, features.KindBuilding, f.Props.Kind)
	require.NotNil(t, f.Props.Building)
	assert.Equal(t, 3, f.Props.Building.Floors)
	assert.Equal(t, []string{"Mechanics", "Physics"}, f.Props.Building.Faculties)
	assert.Equal(t, "Leninskie Gory 1", f.Props.Common.Address)
	assert.Equal(t, "Mechanics Physics", f.Props.Text("faculties"))
}

func TestUnknownKeysGoToExtra(t *testing.T) {
	p, err := features.DecodeProperties(features.KindBuilding, map[string]any{
		"name":   "Lab",
		"osm_id": float64(7),
		"colour": "red",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"osm_id": float64(7), "colour": "red"}, p.Extra)
}

func TestBadPropertyDowngradesToGeneric(t *testing.T) {
	p, err := features.DecodeProperties(features.KindBuilding, map[string]any{
		"name":   "Odd",
		"floors": "many",
	})
	assert.Error(t, err)
	assert.Equal(t, features.KindGeneric, p.Kind)
	assert.Equal(t, "Odd", p.Common.Name)
	assert.Equal(t, "many", p.Extra["floors"])
}

func TestEnsureLoadedIsIdempotent(t *testing.T) {
	s, f := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureLoaded(ctx, "hall_f1"))
	require.NoError(t, s.EnsureLoaded(ctx, "hall_f1"))
	assert.Equal(t, 1, f.Count("data/hall_f1.geojson"))
}

func TestEnsureLoadedConcurrentSharesFetch(t *testing.T) {
	s, f := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureLoaded(context.Background(), "hall_f2"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.Count("data/hall_f2.geojson"))
}

// gatedFetcher holds every fetch until gate is closed.
type gatedFetcher struct {
	*features.MapFetcher
	started chan struct{}
	gate    chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	g.started <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MapFetcher.Fetch(ctx, url)
}

func TestEnsureLoadedSurvivesCancelledCaller(t *testing.T) {
	f := &gatedFetcher{MapFetcher: testutil.Fetcher(), started: make(chan struct{}, 4), gate: make(chan struct{})}
	s, err := features.NewStore(testutil.Registry(t), f, zap.NewNop())
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- s.EnsureLoaded(ctxA, "hall_f1") }()
	<-f.started

	errB := make(chan error, 1)
	go func() { errB <- s.EnsureLoaded(context.Background(), "hall_f1") }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(f.gate)
	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("live caller did not return")
	}
	assert.True(t, s.Loaded("hall_f1"))
	assert.Equal(t, 1, f.Count("data/hall_f1.geojson"))
	for _, st := range s.Report() {
		if st.Layer == "hall_f1" {
			assert.Empty(t, st.Error)
		}
	}
}

func TestLoadFailureIsReported(t *testing.T) {
	s, f := newStore(t)
	delete(f.Docs, "data/cafe.geojson")

	_, err := s.Load(context.Background(), "cafe")
	var se *features.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.Status)
	assert.False(t, s.Loaded("cafe"))

	for _, st := range s.Report() {
		if st.Layer == "cafe" {
			assert.NotEmpty(t, st.Error)
			assert.False(t, st.Loaded)
		}
	}
}

func TestMalformedDocument(t *testing.T) {
	s, f := newStore(t)
	f.Docs["data/cafe.geojson"] = []byte(`{"type":"FeatureCollection","features":[`)
	_, err := s.Load(context.Background(), "cafe")
	assert.Error(t, err)
}

func TestSkipsFeaturesWithoutGeometry(t *testing.T) {
	s, f := newStore(t)
	f.Docs["data/cafe.geojson"] = []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"Ghost"},"geometry":null},
		{"type":"Feature","properties":{"name":"Real"},"geometry":{"type":"Point","coordinates":[1,2]}}]}`)
	n, err := s.Load(context.Background(), "cafe")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	feats, _ := s.Features("cafe")
	assert.Equal(t, "cafe_1", feats[0].ID)
}

func TestUnknownLayer(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, registry.ErrUnknownLayer)

	_, err = s.Features("cafe")
	assert.ErrorIs(t, err, features.ErrNotLoaded)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	s, f := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureLoaded(ctx, "bus_stops"))
	s.Invalidate("bus_stops")
	assert.False(t, s.Loaded("bus_stops"))
	require.NoError(t, s.EnsureLoaded(ctx, "bus_stops"))
	assert.Equal(t, 2, f.Count("data/bus.geojson"))
}

func TestReprojectsWGS84(t *testing.T) {
	reg, err := registry.Parse([]byte(`
map: {dataProjection: "EPSG:4326"}
layers:
  interactive: [{name: pin, url: pin.geojson, category: poi}]
`))
	require.NoError(t, err)
	f := features.NewMapFetcher(map[string][]byte{
		"pin.geojson": []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[37.556241,55.833967]}}]}`),
	})
	s, err := features.NewStore(reg, f, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Load(context.Background(), "pin")
	require.NoError(t, err)

	feats, _ := s.Features("pin")
	p := feats[0].Geometry.(orb.Point)
	assert.InDelta(t, 4180741.6, p[0], 1)
	assert.InDelta(t, 7525433.9, p[1], 1)

	back := feats[0].GeoJSON().Geometry.(orb.Point)
	assert.InDelta(t, 37.556241, back[0], 1e-6)
	assert.False(t, math.IsNaN(back[1]))
	assert.Equal(t, "pin", feats[0].GeoJSON().Properties["layer"])
}

func TestDirFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "x.geojson"), []byte("{}"), 0644))

	d := features.DirFetcher{Root: dir}
	data, err := d.Fetch(context.Background(), "data/x.geojson")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = d.Fetch(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestCachedFetcher(t *testing.T) {
	inner := features.NewMapFetcher(map[string][]byte{"a": []byte("doc")})
	c, err := features.NewCachedFetcher(inner, 1<<20, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		data, err := c.Fetch(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, "doc", string(data))
	}
	assert.Equal(t, 1, inner.Count("a"))

	c.Purge("a")
	_, err = c.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Count("a"))
}
