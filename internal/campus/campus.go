// Package campus wires the map engine together and runs the two-phase
// startup: build the engine, then load layers and index them.
package campus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/db"
	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/panel"
	"github.com/joeblew999/plat-campus/internal/prefs"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/search"
	"github.com/joeblew999/plat-campus/internal/session"
	"github.com/joeblew999/plat-campus/internal/spatial"
	"github.com/joeblew999/plat-campus/internal/templates"
	"github.com/joeblew999/plat-campus/internal/tiler"
)

// ErrInit wraps failures of the first startup phase. They are not retried.
var ErrInit = errors.New("initializing map engine")

// DefaultSessionTTL is used when Config.SessionTTL is zero.
const DefaultSessionTTL = 30 * time.Minute

// Config configures Start.
type Config struct {
	Registry *registry.Registry
	Fetcher  features.Fetcher
	// DataDir is the local GeoJSON root. Watch needs it; remote sources leave it empty.
	DataDir string
	// DB enables the DuckDB mirror when non-nil.
	DB *db.Config
	// Prefs stores client state; nil uses an in-memory store.
	Prefs prefs.Store
	// ClearDelay overrides the registry's selection clear delay when positive.
	ClearDelay time.Duration
	SessionTTL time.Duration
	Log        *zap.Logger
}

// Map is a running campus map: registry, loaded features, search index and
// the sessions of connected clients.
type Map struct {
	Registry  *registry.Registry
	Store     *features.Store
	Resolver  *spatial.Resolver
	Presenter *panel.Presenter
	Renderer  *templates.Renderer
	Sessions  *session.Manager
	Tiles     *tiler.Tiler
	Prefs     prefs.Store
	DB        *db.DB

	cfg Config
	log *zap.Logger

	mu    sync.RWMutex
	index *indexRef
}

// indexRef counts the readers of one index generation.
type indexRef struct {
	*search.Index
	readers sync.WaitGroup
}

// close waits for the last reader, then closes the index.
func (r *indexRef) close() error {
	r.readers.Wait()
	return r.Index.Close()
}

// Start builds the engine and loads base then interactive layers in
// registry order. A layer that fails to load is logged and skipped. ctx is
// checked after every load; a cancelled startup releases what was built and
// returns ctx's error. Floor layers are left for lazy loading.
func Start(ctx context.Context, cfg Config) (*Map, error) {
	m, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	layers := append(m.Registry.Group(registry.GroupBase), m.Registry.Group(registry.GroupInteractive)...)
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			m.Close()
			return nil, err
		}
		if _, err := m.Store.Load(ctx, l.Name); err != nil {
			if ctx.Err() != nil {
				m.Close()
				return nil, ctx.Err()
			}
			m.log.Warn("layer failed to load",
				zap.String("layer", l.Name),
				zap.String("url", l.URL),
				zap.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		m.Close()
		return nil, err
	}

	if err := m.Reindex(); err != nil {
		m.Close()
		return nil, err
	}
	if m.DB != nil {
		if err := m.Mirror(ctx); err != nil {
			m.log.Warn("duckdb mirror failed", zap.Error(err))
		}
	}
	return m, nil
}

func build(cfg Config) (*Map, error) {
	if cfg.Registry == nil {
		return nil, errors.New("no layer registry")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("no feature source")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.NewMemoryStore()
	}
	if cfg.ClearDelay <= 0 {
		cfg.ClearDelay = time.Duration(cfg.Registry.Map.ClearDelayMs) * time.Millisecond
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	store, err := features.NewStore(cfg.Registry, cfg.Fetcher, cfg.Log.Named("features"))
	if err != nil {
		return nil, err
	}
	renderer, err := templates.Default()
	if err != nil {
		return nil, fmt.Errorf("parsing fragments: %w", err)
	}

	m := &Map{
		Registry:  cfg.Registry,
		Store:     store,
		Resolver:  spatial.New(cfg.Registry, store, cfg.Log.Named("spatial")),
		Presenter: panel.New(cfg.Registry, renderer),
		Renderer:  renderer,
		Tiles:     tiler.New(store),
		Prefs:     cfg.Prefs,
		cfg:       cfg,
		log:       cfg.Log,
	}
	m.Sessions = session.NewManager(session.Engine{
		Registry:   m.Registry,
		Store:      store,
		Resolver:   m.Resolver,
		Presenter:  m.Presenter,
		ClearDelay: cfg.ClearDelay,
		Log:        cfg.Log.Named("session"),
	}, nil, cfg.SessionTTL)

	if cfg.DB != nil {
		d, err := db.Open(*cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("opening duckdb: %w", err)
		}
		m.DB = d
	}
	return m, nil
}

// Search returns the current search index and a release func that must
// be called once the caller is done with it. The index stays open until
// released, even when Reindex replaces it meanwhile. It returns a nil
// index when none is built.
func (m *Map) Search() (*search.Index, func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return nil, func() {}
	}
	ref := m.index
	ref.readers.Add(1)
	var once sync.Once
	return ref.Index, func() { once.Do(ref.readers.Done) }
}

// Reindex rebuilds the search index from the loaded features. The index is
// never rebuilt implicitly. The replaced index is closed in the background
// once its last reader releases it.
func (m *Map) Reindex() error {
	idx, err := search.Build(m.Registry, m.Store, m.log.Named("search"))
	if err != nil {
		return err
	}
	m.mu.Lock()
	old := m.index
	m.index = &indexRef{Index: idx}
	m.mu.Unlock()
	if old != nil {
		go func() {
			if err := old.close(); err != nil {
				m.log.Warn("closing replaced search index", zap.Error(err))
			}
		}()
	}
	return nil
}

// purger is a fetcher that caches documents.
type purger interface {
	Purge(url string)
}

// Reload refetches one layer, refreshes its DuckDB rows and, when the
// layer is searchable, rebuilds the index. On failure the previously loaded
// features are dropped.
func (m *Map) Reload(ctx context.Context, layer string) error {
	l, ok := m.Registry.Layer(layer)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownLayer, layer)
	}
	if p, ok := m.cfg.Fetcher.(purger); ok {
		p.Purge(l.URL)
	}
	m.Store.Invalidate(layer)
	n, err := m.Store.Load(ctx, layer)
	if err != nil {
		return fmt.Errorf("reloading %s: %w", layer, err)
	}
	m.log.Info("layer reloaded", zap.String("layer", layer), zap.Int("features", n))

	if m.DB != nil {
		if err := m.mirrorLayer(ctx, layer); err != nil {
			m.log.Warn("duckdb mirror failed", zap.String("layer", layer), zap.Error(err))
		}
	}
	if l.Interactive && l.Group != registry.GroupFloor {
		return m.Reindex()
	}
	return nil
}

// Mirror copies every loaded layer into DuckDB.
func (m *Map) Mirror(ctx context.Context) error {
	if m.DB == nil {
		return errors.New("duckdb mirror disabled")
	}
	for _, l := range m.Registry.Layers() {
		if !m.Store.Loaded(l.Name) {
			continue
		}
		if err := m.mirrorLayer(ctx, l.Name); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map) mirrorLayer(ctx context.Context, layer string) error {
	feats, err := m.Store.Features(layer)
	if err != nil {
		return err
	}
	n, err := m.DB.Mirror(ctx, layer, feats)
	if err != nil {
		return err
	}
	m.log.Debug("layer mirrored", zap.String("layer", layer), zap.Int("rows", n))
	return nil
}

// DataDir returns the local data root, or "" for remote sources.
func (m *Map) DataDir() string { return m.cfg.DataDir }

// Close releases the index and the database.
func (m *Map) Close() error {
	var errs []error
	m.mu.Lock()
	idx := m.index
	m.index = nil
	m.mu.Unlock()
	if idx != nil {
		errs = append(errs, idx.close())
	}
	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}
	return errors.Join(errs...)
}
