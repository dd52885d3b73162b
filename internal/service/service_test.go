package service

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/testutil"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestBasemapServesLocalTile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tiles", "base", "16", "3", "5.png"), "png")
	svc := NewTileService(dir, registry.TileConfig{FallbackURL: "https://tile.example.org/{z}/{x}/{y}.png"}, nil)

	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/16/3/5.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}

func TestBasemapFallsBackToPublicTile(t *testing.T) {
	svc := NewTileService(t.TempDir(), registry.TileConfig{FallbackURL: "https://tile.example.org/{z}/{x}/{y}.png"}, nil)

	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/16/39621/20479.png", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://tile.example.org/16/39621/20479.png", rec.Header().Get("Location"))
}

func TestBasemapRejectsBadPaths(t *testing.T) {
	svc := NewTileService(t.TempDir(), registry.TileConfig{FallbackURL: "https://tile.example.org/{z}/{x}/{y}.png"}, nil)
	for _, p := range []string{"/16/1/x.png", "/1/5/0.png", "/../../etc/passwd", "/16/1/2.jpg", "/16/1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = p
		rec := httptest.NewRecorder()
		svc.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}

func TestBasemapWithoutFallback(t *testing.T) {
	svc := NewTileService(t.TempDir(), registry.TileConfig{}, nil)
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/16/1/2.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTileList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tiles", "base", "17", "1", "1.png"), "a")
	writeFile(t, filepath.Join(dir, "tiles", "base", "16", "1", "1.png"), "ab")
	writeFile(t, filepath.Join(dir, "tiles", "base", "16", "1", "2.png"), "abc")

	files, err := NewTileService(dir, registry.TileConfig{}, nil).List()
	require.NoError(t, err)
	assert.Equal(t, []TileFile{
		{Zoom: 16, Count: 2, Size: "5 B"},
		{Zoom: 17, Count: 1, Size: "1 B"},
	}, files)

	empty, err := NewTileService(t.TempDir(), registry.TileConfig{}, nil).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSourceList(t *testing.T) {
	dir := t.TempDir()
	reg := testutil.Registry(t)
	writeFile(t, filepath.Join(dir, "data", "main.geojson"), testutil.Documents["data/main.geojson"])

	files := NewSourceService(dir, false, reg).List()
	require.Len(t, files, len(reg.Layers()))

	byLayer := map[string]SourceFile{}
	for _, f := range files {
		byLayer[f.Layer] = f
	}
	assert.True(t, byLayer["main_building"].Exists)
	assert.NotEmpty(t, byLayer["main_building"].Size)
	assert.Equal(t, "GeoJSON", byLayer["main_building"].FileType)
	assert.False(t, byLayer["cafe"].Exists)

	remote := NewSourceService("", true, reg).List()
	assert.True(t, remote[0].Remote)
	assert.False(t, remote[0].Exists)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2<<20))
}
