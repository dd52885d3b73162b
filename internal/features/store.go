package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-campus/internal/metrics"
	"github.com/joeblew999/plat-campus/internal/registry"
)

// ErrNotLoaded is returned when a layer has no features in memory.
var ErrNotLoaded = errors.New("layer not loaded")

// LoadStatus reports the outcome of the most recent load of a layer.
type LoadStatus struct {
	Layer    string    `json:"layer" doc:"Layer name"`
	Loaded   bool      `json:"loaded" doc:"Whether features are in memory"`
	Features int       `json:"features" doc:"Features held"`
	Skipped  int       `json:"skipped" doc:"Features dropped for missing or malformed geometry"`
	Degraded int       `json:"degraded" doc:"Features whose properties did not match the layer's typed shape"`
	Fetches  int       `json:"fetches" doc:"Source fetches issued for this layer"`
	Error    string    `json:"error,omitempty" doc:"Last load error"`
	LoadedAt time.Time `json:"loadedAt,omitempty" doc:"Time of the last successful load"`
}

// Store holds the loaded features of every layer.
type Store struct {
	reg        *registry.Registry
	fetcher    Fetcher
	log        *zap.Logger
	toMercator bool

	mu     sync.RWMutex
	layers map[string][]*Feature
	status map[string]*LoadStatus
	group  singleflight.Group
}

// NewStore creates an empty store. Source documents in EPSG:4326 are
// reprojected to EPSG:3857; EPSG:3857 documents are used as-is.
func NewStore(reg *registry.Registry, fetcher Fetcher, log *zap.Logger) (*Store, error) {
	s := &Store{
		reg:     reg,
		fetcher: fetcher,
		log:     log,
		layers:  make(map[string][]*Feature),
		status:  make(map[string]*LoadStatus),
	}
	switch reg.Map.DataProjection {
	case "EPSG:4326", "WGS84":
		s.toMercator = true
	case "EPSG:3857", "EPSG:900913":
	default:
		return nil, fmt.Errorf("unsupported data projection %q", reg.Map.DataProjection)
	}
	return s, nil
}

// Load fetches and decodes a layer, replacing any features already held.
func (s *Store) Load(ctx context.Context, name string) (int, error) {
	layer, ok := s.reg.Layer(name)
	if !ok {
		return 0, fmt.Errorf("%w %q", registry.ErrUnknownLayer, name)
	}

	s.mu.Lock()
	st := s.statusLocked(name)
	st.Fetches++
	s.mu.Unlock()

	data, err := s.fetcher.Fetch(ctx, layer.URL)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.fail(name, err)
		return 0, err
	}

	feats, skipped, degraded, err := s.decode(layer, data)
	if err != nil {
		s.fail(name, err)
		return 0, err
	}

	s.mu.Lock()
	s.layers[name] = feats
	st = s.statusLocked(name)
	st.Loaded = true
	st.Features = len(feats)
	st.Skipped = skipped
	st.Degraded = degraded
	st.Error = ""
	st.LoadedAt = time.Now()
	s.mu.Unlock()

	metrics.LayerLoadsTotal.WithLabelValues("ok").Inc()
	metrics.FeaturesSkippedTotal.Add(float64(skipped))
	s.log.Debug("layer loaded",
		zap.String("layer", name),
		zap.Int("features", len(feats)),
		zap.Int("skipped", skipped))
	return len(feats), nil
}

// EnsureLoaded loads a layer only if it is not already in memory.
// Concurrent callers for the same layer share a single fetch. The shared
// fetch is not tied to any caller's context: a caller whose ctx ends
// returns ctx's error while the fetch carries on for the others.
func (s *Store) EnsureLoaded(ctx context.Context, name string) error {
	if s.Loaded(name) {
		return nil
	}
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan(name, func() (any, error) {
		if s.Loaded(name) {
			return nil, nil
		}
		_, err := s.Load(flight, name)
		return nil, err
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate drops a layer's features so the next EnsureLoaded refetches.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, name)
	if st, ok := s.status[name]; ok {
		st.Loaded = false
		st.Features = 0
	}
}

// Loaded reports whether a layer's features are in memory.
func (s *Store) Loaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.layers[name]
	return ok
}

// Features returns the features of a layer in source order.
func (s *Store) Features(name string) ([]*Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feats, ok := s.layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	return append([]*Feature(nil), feats...), nil
}

// Feature looks up one feature by layer and id.
func (s *Store) Feature(layer, id string) (*Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.layers[layer] {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// Report returns the load status of every registered layer in
// configuration order. Layers never attempted report zero values.
func (s *Store) Report() []LoadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LoadStatus
	for _, l := range s.reg.Layers() {
		if st, ok := s.status[l.Name]; ok {
			out = append(out, *st)
		} else {
			out = append(out, LoadStatus{Layer: l.Name})
		}
	}
	return out
}

func (s *Store) statusLocked(name string) *LoadStatus {
	st, ok := s.status[name]
	if !ok {
		st = &LoadStatus{Layer: name}
		s.status[name] = st
	}
	return st
}

func (s *Store) fail(name string, err error) {
	s.mu.Lock()
	s.statusLocked(name).Error = err.Error()
	s.mu.Unlock()
	metrics.LayerLoadsTotal.WithLabelValues("failed").Inc()
}

func (s *Store) decode(layer registry.Layer, data []byte) ([]*Feature, int, int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parsing %s: %w", layer.URL, err)
	}

	kind := KindFor(layer.Role)
	seen := make(map[string]bool, len(fc.Features))
	feats := make([]*Feature, 0, len(fc.Features))
	skipped, degraded := 0, 0

	for i, gf := range fc.Features {
		if gf == nil || gf.Geometry == nil || emptyGeometry(gf.Geometry) {
			skipped++
			continue
		}
		geom := gf.Geometry
		if s.toMercator {
			geom = project.Geometry(geom, project.WGS84.ToMercator)
		}

		props, perr := DecodeProperties(kind, gf.Properties)
		if perr != nil {
			degraded++
			s.log.Debug("feature properties downgraded to generic",
				zap.String("layer", layer.Name), zap.Int("index", i), zap.Error(perr))
		}

		id := featureID(gf)
		if id == "" || seen[id] {
			id = fmt.Sprintf("%s_%d", layer.Name, i)
		}
		seen[id] = true

		feats = append(feats, &Feature{
			ID:       id,
			Layer:    layer.Name,
			Category: layer.Category,
			Geometry: geom,
			Props:    props,
		})
	}
	return feats, skipped, degraded, nil
}

func featureID(f *geojson.Feature) string {
	if f.ID != nil {
		if s := Stringify(f.ID); s != "" {
			return s
		}
	}
	if v, ok := f.Properties["id"]; ok {
		return Stringify(v)
	}
	return ""
}

func emptyGeometry(g orb.Geometry) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return len(t) == 0 || len(t[0]) < 4
	case orb.MultiPolygon:
		return len(t) == 0
	case orb.LineString:
		return len(t) < 2
	case orb.MultiPoint:
		return len(t) == 0
	case orb.Collection:
		return len(t) == 0
	}
	return false
}
