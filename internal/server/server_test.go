package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/campus"
	"github.com/joeblew999/plat-campus/internal/prefs"
	"github.com/joeblew999/plat-campus/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *campus.Map) {
	t.Helper()
	m, err := campus.Start(context.Background(), campus.Config{
		Registry: testutil.Registry(t),
		Fetcher:  testutil.Fetcher(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return New(Config{Host: "127.0.0.1", Port: "0", DataDir: t.TempDir()}, m), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoot(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(t, srv, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Values("Link"))
	assert.Contains(t, w.Body.String(), "plat-campus")

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/nothing-here").Code)
}

func TestOpenAPIServers(t *testing.T) {
	srv, _ := newTestServer(t)
	oapi := srv.OpenAPI()
	require.Len(t, oapi.Servers, 1)
	assert.Equal(t, "http://127.0.0.1:0", oapi.Servers[0].URL)
	assert.Equal(t, Version, oapi.Info.Version)
}

func TestVectorTiles(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(t, srv, "/tiles/vector/cafe/0/0/0.mvt")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/vnd.mapbox-vector-tile", w.Header().Get("Content-Type"))
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.NotEmpty(t, w.Body.Bytes())

	// The fixture campus lies just north-east of (0,0), outside tile 1/0/0.
	assert.Equal(t, http.StatusNoContent, get(t, srv, "/tiles/vector/cafe/1/0/0.mvt").Code)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/tiles/vector/nope/0/0/0.mvt").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/tiles/vector/cafe/0/0/0.png").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/tiles/vector/cafe/30/0/0.mvt").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/tiles/vector/cafe/1/5/0.mvt").Code)
}

func TestVectorTileLoadsFloorLayer(t *testing.T) {
	srv, m := newTestServer(t)
	require.False(t, m.Store.Loaded("hall_f0"))

	// At zoom 0 the rooms are smaller than a pixel, so the tile may be empty.
	w := get(t, srv, "/tiles/vector/hall_f0/0/0/0.mvt")
	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, w.Code)
	assert.True(t, m.Store.Loaded("hall_f0"))
}

func TestBaseTileFallback(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(t, srv, "/tiles/base/3/4/2.png")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://tile.example.org/3/4/2.png", w.Header().Get("Location"))
}

func TestRecovererRecordsDiagnostic(t *testing.T) {
	srv, m := newTestServer(t)
	srv.mux.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(ClientHeader, "client-1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body recoveryBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"retry", "reload"}, body.Recovery)
	assert.NotEmpty(t, body.Error)

	diags, err := prefs.Diagnostics(context.Background(), m.Prefs, "client-1")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "kaboom", diags[0].Message)
	assert.Equal(t, "/boom", diags[0].Path)
	assert.NotEmpty(t, diags[0].Stack)

	assert.Contains(t, get(t, srv, "/metrics").Body.String(), "campus_recovered_panics_total")
}

func TestSessionEventStream(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.NotEmpty(t, created.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/sessions/"+created.ID+"/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Contains(t, stream.Header.Get("Content-Type"), "text/event-stream")

	rd := bufio.NewReader(stream.Body)
	readUntil := func(substr string) string {
		t.Helper()
		var seen strings.Builder
		for {
			line, err := rd.ReadString('\n')
			seen.WriteString(line)
			if strings.Contains(line, substr) {
				return seen.String()
			}
			if err != nil {
				t.Fatalf("stream ended before %q: %v\n%s", substr, err, seen.String())
			}
		}
	}

	first := readUntil("infoPanelOpen")
	assert.Contains(t, first, "#poi-menu")
	assert.Contains(t, first, "#floor-plan")

	del, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/"+created.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	readUntil("sessionEnded")
	_, err = io.Copy(io.Discard, rd)
	assert.NoError(t, err)
}

func TestSessionEventStreamUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/sessions/missing/events").Code)
}
