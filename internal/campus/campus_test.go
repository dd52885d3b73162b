package campus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/db"
	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/testutil"
)

func start(t *testing.T, cfg Config) *Map {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = testutil.Registry(t)
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = testutil.Fetcher()
	}
	m, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestStartLoadsBaseAndInteractiveLayers(t *testing.T) {
	m := start(t, Config{})

	assert.True(t, m.Store.Loaded("ground"))
	assert.True(t, m.Store.Loaded("cafe"))
	assert.False(t, m.Store.Loaded("hall_f1"), "floor layers load lazily")

	idx, release := m.Search()
	defer release()
	page, err := idx.Query("Coffee Point", "", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, "cafe-in", page.Results[0].ID)
}

func TestStartSkipsFailingLayer(t *testing.T) {
	f := testutil.Fetcher()
	delete(f.Docs, "data/cafe.geojson")

	m := start(t, Config{Fetcher: f})

	assert.False(t, m.Store.Loaded("cafe"))
	assert.True(t, m.Store.Loaded("atm"), "later layers still load")
	for _, st := range m.Store.Report() {
		if st.Layer == "cafe" {
			assert.Contains(t, st.Error, "404")
		}
	}
}

func TestStartCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := Start(ctx, Config{Registry: testutil.Registry(t), Fetcher: testutil.Fetcher()})
	assert.Nil(t, m)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartEngineFailure(t *testing.T) {
	_, err := Start(context.Background(), Config{Fetcher: testutil.Fetcher()})
	assert.ErrorIs(t, err, ErrInit)
}

func TestReload(t *testing.T) {
	f := testutil.Fetcher()
	m := start(t, Config{Fetcher: f})
	require.Equal(t, 1, f.Count("data/cafe.geojson"))

	f.Docs["data/cafe.geojson"] = []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"cafe-in","properties":{"name":"Tea House"},"geometry":{"type":"Point","coordinates":[600,200]}}]}`)
	require.NoError(t, m.Reload(context.Background(), "cafe"))

	assert.Equal(t, 2, f.Count("data/cafe.geojson"))
	got, ok := m.Store.Feature("cafe", "cafe-in")
	require.True(t, ok)
	assert.Equal(t, "Tea House", got.Name())

	idx, release := m.Search()
	defer release()
	page, err := idx.Query("Tea House", "", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	assert.Equal(t, "cafe-in", page.Results[0].ID)

	assert.Error(t, m.Reload(context.Background(), "nope"))
}

func TestReindexKeepsHeldIndexOpen(t *testing.T) {
	m := start(t, Config{})
	old, release := m.Search()
	require.NoError(t, m.Reindex())

	page, err := old.Query("coffee", "", 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, page.Results)

	current, releaseCurrent := m.Search()
	assert.NotSame(t, old, current)
	releaseCurrent()

	release()
	release()
	assert.Eventually(t, func() bool {
		_, err := old.Query("coffee", "", 10, 0)
		return err != nil
	}, time.Second, 10*time.Millisecond, "the replaced index closes after its last release")
}

func TestMirrorToDuckDB(t *testing.T) {
	m := start(t, Config{DB: &db.Config{}})
	require.NotNil(t, m.DB)

	res, err := m.DB.Query(context.Background(), "SELECT count(*) AS n FROM features WHERE layer = 'cafe'")
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.EqualValues(t, 2, res.Rows[0]["n"])
}

func TestMirrorDisabled(t *testing.T) {
	m := start(t, Config{})
	assert.Error(t, m.Mirror(context.Background()))
}

func TestWatchReloadsChangedSource(t *testing.T) {
	dir := t.TempDir()
	for url, doc := range testutil.Documents {
		p := filepath.Join(dir, filepath.FromSlash(url))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(doc), 0644))
	}

	m := start(t, Config{Fetcher: features.DirFetcher{Root: dir}, DataDir: dir})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	doc := strings.Replace(testutil.Documents["data/cafe.geojson"], "Coffee Point", "Tea House", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "cafe.geojson"), []byte(doc), 0644))

	assert.Eventually(t, func() bool {
		f, ok := m.Store.Feature("cafe", "cafe-in")
		return ok && f.Name() == "Tea House"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchNeedsDataDir(t *testing.T) {
	m := start(t, Config{})
	assert.Error(t, m.Watch(context.Background()))
}
