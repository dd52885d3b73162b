// Package session holds per-client map state: which layers are visible,
// the floor-plan session, the selected feature and the panels it drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/floorplan"
	"github.com/joeblew999/plat-campus/internal/geolocate"
	"github.com/joeblew999/plat-campus/internal/metrics"
	"github.com/joeblew999/plat-campus/internal/panel"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/spatial"
	"github.com/joeblew999/plat-campus/internal/visibility"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrFeatureNotFound is returned when selecting a feature that is not loaded.
	ErrFeatureNotFound = errors.New("feature not found")
	// ErrNotSelectable is returned when selecting a feature of a non-interactive layer.
	ErrNotSelectable = errors.New("layer is not interactive")
)

// Store is the part of the feature store a session needs.
type Store interface {
	Feature(layer, id string) (*features.Feature, bool)
	EnsureLoaded(ctx context.Context, layer string) error
}

// Engine is what every session of a campus shares.
type Engine struct {
	Registry   *registry.Registry
	Store      Store
	Resolver   *spatial.Resolver
	Presenter  *panel.Presenter
	ClearDelay time.Duration
	Log        *zap.Logger
}

// Selection identifies the selected feature.
type Selection struct {
	Layer    string            `json:"layer" doc:"Layer of the selected feature"`
	ID       string            `json:"id" doc:"Feature id"`
	Name     string            `json:"name" doc:"Display name"`
	Category registry.Category `json:"category" doc:"Layer category"`
}

// State is a snapshot of a session.
type State struct {
	ID            string            `json:"id" doc:"Session id"`
	CreatedAt     time.Time         `json:"createdAt" doc:"Creation time"`
	LastSeen      time.Time         `json:"lastSeen" doc:"Time of the last request"`
	Visible       []string          `json:"visible" doc:"Visible layers, sorted"`
	FloorPlan     floorplan.State   `json:"floorPlan" doc:"Floor-plan session"`
	Selected      *Selection        `json:"selected,omitempty" doc:"Selected feature"`
	InfoPanelOpen bool              `json:"infoPanelOpen" doc:"Whether the info panel is open"`
	POIMenu       panel.Menu        `json:"poiMenu" doc:"POI menu of the selected building"`
	Location      *geolocate.Result `json:"location,omitempty" doc:"Last successful geolocation"`
}

// ClickResult is the resolution of a click and the state it produced.
type ClickResult struct {
	Outcome string `json:"outcome" enum:"none,non_interactive,interactive" doc:"Hit test outcome"`
	State   State  `json:"state" doc:"Session state after the click"`
}

// Session is one client's map state. All methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	engine  *Engine
	publish func(Event)

	mu       sync.Mutex
	lastSeen time.Time
	vis      *visibility.Set
	plan     floorplan.Session
	selected *features.Feature
	infoOpen bool
	menu     panel.Menu
	location *geolocate.Result

	// gen increments on every selection change; a pending clear only
	// applies if gen is unchanged when its timer fires.
	gen   uint64
	timer *time.Timer
}

func newSession(id string, now time.Time, engine *Engine, publish func(Event)) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		engine:    engine,
		publish:   publish,
		lastSeen:  now,
		vis:       visibility.New(engine.Registry),
		menu:      engine.Presenter.Menu(nil, nil),
	}
}

func (s *Session) log() *zap.Logger {
	if s.engine.Log == nil {
		return zap.NewNop()
	}
	return s.engine.Log
}

func (s *Session) changed(action string) {
	if s.publish != nil {
		s.publish(Event{SessionID: s.ID, Action: action})
	}
}

// Click resolves pt against the visible layers and applies the result.
// A non-positive tolerance uses the registry's default.
func (s *Session) Click(ctx context.Context, pt orb.Point, tolerance float64) (ClickResult, error) {
	if tolerance <= 0 {
		tolerance = s.engine.Registry.Map.HitTolerance
	}
	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()

	hit := s.engine.Resolver.HitTest(pt, tolerance, s.vis)
	metrics.ClicksTotal.WithLabelValues(hit.Outcome.String()).Inc()

	switch hit.Outcome {
	case spatial.NoHit:
		s.dismiss()
		s.plan.Close(s.vis, s.engine.Registry.RestoreOnClose())
	case spatial.NonInteractiveHit:
		s.dismiss()
		if s.plan.Active() && !s.plan.Contains(pt) {
			s.plan.Close(s.vis, s.engine.Registry.RestoreOnClose())
		}
	case spatial.InteractiveHit:
		if err := s.selectLocked(ctx, hit.Feature, hit.Layer); err != nil {
			return ClickResult{}, err
		}
	}
	return ClickResult{Outcome: hit.Outcome.String(), State: s.snapshotLocked()}, nil
}

// Select selects a feature by identity, as if it had been clicked.
func (s *Session) Select(ctx context.Context, layer, id string) (State, error) {
	l, ok := s.engine.Registry.Layer(layer)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", registry.ErrUnknownLayer, layer)
	}
	if !l.Interactive {
		return State{}, fmt.Errorf("%w: %s", ErrNotSelectable, layer)
	}
	f, ok := s.engine.Store.Feature(layer, id)
	if !ok {
		return State{}, fmt.Errorf("%w: %s/%s", ErrFeatureNotFound, layer, id)
	}

	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.selectLocked(ctx, f, l); err != nil {
		return State{}, err
	}
	return s.snapshotLocked(), nil
}

func (s *Session) selectLocked(ctx context.Context, f *features.Feature, layer registry.Layer) error {
	reg := s.engine.Registry
	s.cancelClear()

	if s.plan.OwnsLayer(f.Layer) {
		s.selected = f
		s.infoOpen = true
		s.menu = s.engine.Presenter.Menu(nil, nil)
		return nil
	}

	if layer.Role == registry.RoleBuilding {
		if plan, ok := reg.FloorPlanByLayer(f.Layer); ok {
			if err := floorplan.LoadFloors(ctx, s.engine.Store, plan); err != nil {
				if ctx.Err() != nil {
					return err
				}
				s.log().Warn("floor plan partially loaded",
					zap.String("building", plan.BuildingID),
					zap.Error(err))
			}
			s.plan.Open(plan, f.Geometry, s.vis)
			s.selected = f
			s.infoOpen = false
			s.menu = s.engine.Presenter.Menu(nil, nil)
			return nil
		}

		s.plan.Close(s.vis, reg.RestoreOnClose())
		s.selected = f
		s.infoOpen = true
		s.menu = s.engine.Presenter.Menu(f, s.engine.Resolver.FeaturesInBuilding(f))
		return nil
	}

	s.plan.Close(s.vis, reg.RestoreOnClose())
	s.selected = f
	s.infoOpen = true
	s.menu = s.engine.Presenter.Menu(nil, nil)
	return nil
}

// dismiss closes both panels and clears the selection after ClearDelay.
func (s *Session) dismiss() {
	s.infoOpen = false
	s.menu = s.engine.Presenter.Menu(nil, nil)
	s.cancelClear()
	if s.selected == nil {
		return
	}
	if s.engine.ClearDelay <= 0 {
		s.selected = nil
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.engine.ClearDelay, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.selected = nil
		s.timer = nil
		s.mu.Unlock()
		s.changed("cleared")
	})
}

func (s *Session) cancelClear() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Toggle flips one layer's visibility and returns whether it is now
// visible. Base layers never change, and floor layers follow the floor
// plan only.
func (s *Session) Toggle(name string) (bool, error) {
	if !s.engine.Registry.Has(name) {
		return false, fmt.Errorf("%w: %s", registry.ErrUnknownLayer, name)
	}
	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vis.Toggle(name)
	return s.vis.Has(name), nil
}

// ToggleAll shows or hides the bulk toggle allowlist and returns whether
// it is now shown.
func (s *Session) ToggleAll() bool {
	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vis.ToggleAll()
}

// SetFloor switches the active plan to level.
func (s *Session) SetFloor(ctx context.Context, level int) (floorplan.State, error) {
	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.plan.Active() {
		return floorplan.State{}, floorplan.ErrNoFloorPlan
	}
	state := s.plan.Snapshot()
	for _, f := range state.Floors {
		if f.Level != level {
			continue
		}
		if err := s.engine.Store.EnsureLoaded(ctx, f.LayerName); err != nil {
			s.log().Warn("floor layer not loaded", zap.String("layer", f.LayerName), zap.Error(err))
		}
	}
	if err := s.plan.SetFloor(level, s.vis); err != nil {
		return floorplan.State{}, err
	}
	return s.plan.Snapshot(), nil
}

// CloseFloorPlan closes the floor plan, if any, and restores the building
// layers. It reports whether a plan was open.
func (s *Session) CloseFloorPlan() bool {
	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.Close(s.vis, s.engine.Registry.RestoreOnClose())
}

// SetLocation interprets a browser reading. Successful fixes are kept on
// the session; errors leave the previous fix in place.
func (s *Session) SetLocation(r geolocate.Reading) geolocate.Result {
	res := geolocate.Locate(r, s.engine.Registry.Map, s.engine.Resolver)
	if !res.OK {
		return res
	}
	defer s.changed("updated")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = &res
	return res
}

// Panel returns the info panel view when the panel is open.
func (s *Session) Panel() (panel.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.infoOpen || s.selected == nil {
		return panel.View{}, false
	}
	return s.engine.Presenter.View(s.selected), true
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		LastSeen:      s.lastSeen,
		Visible:       s.vis.Names(),
		FloorPlan:     s.plan.Snapshot(),
		InfoPanelOpen: s.infoOpen,
		POIMenu:       s.menu,
	}
	if s.selected != nil {
		st.Selected = &Selection{
			Layer:    s.selected.Layer,
			ID:       s.selected.ID,
			Name:     s.selected.Name(),
			Category: s.selected.Category,
		}
	}
	if s.location != nil {
		loc := *s.location
		st.Location = &loc
	}
	return st
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) stop() {
	s.mu.Lock()
	s.cancelClear()
	s.mu.Unlock()
}
