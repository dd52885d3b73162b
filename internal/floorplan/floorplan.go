// Package floorplan holds the per-session floor-plan state machine: which
// building's floors are shown and which single floor is visible.
package floorplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/spatial"
	"github.com/joeblew999/plat-campus/internal/visibility"
)

var (
	// ErrNoFloorPlan is returned for floor operations while the session is closed.
	ErrNoFloorPlan = errors.New("no active floor plan")
	// ErrUnknownFloor is returned for levels the active plan does not register.
	ErrUnknownFloor = errors.New("unknown floor")
)

// Loader loads a layer once; repeated calls must not refetch.
type Loader interface {
	EnsureLoaded(ctx context.Context, layer string) error
}

// Session is Closed until Open is called, then Active on one building.
// The zero value is a closed session. Not safe for concurrent use.
type Session struct {
	active   bool
	plan     registry.FloorPlan
	building orb.Geometry
	current  int
}

// State is a read-only view of a session.
type State struct {
	Active       bool             `json:"active" doc:"Whether a floor plan is shown"`
	BuildingID   string           `json:"buildingId,omitempty" doc:"Building of the active plan"`
	BuildingName string           `json:"buildingName,omitempty" doc:"Display name of the building"`
	CurrentFloor int              `json:"currentFloor" doc:"Level of the visible floor"`
	Floors       []registry.Floor `json:"floors,omitempty" doc:"Registered floors"`
}

// Active reports whether a plan is open.
func (s *Session) Active() bool { return s.active }

// BuildingID returns the active building, or "" when closed.
func (s *Session) BuildingID() string {
	if !s.active {
		return ""
	}
	return s.plan.BuildingID
}

// CurrentFloor returns the visible floor of the active plan.
func (s *Session) CurrentFloor() (registry.Floor, bool) {
	if !s.active {
		return registry.Floor{}, false
	}
	return s.plan.Floor(s.current)
}

// Open activates plan for a building outline. Opening the plan that is
// already active keeps its current floor and only refreshes the outline;
// opening a different plan first hides the previous plan's floors. It
// returns true when a new plan was activated.
func (s *Session) Open(plan registry.FloorPlan, building orb.Geometry, vis *visibility.Set) bool {
	if s.active && s.plan.BuildingID == plan.BuildingID {
		s.building = building
		return false
	}
	if s.active {
		s.hideFloors(vis)
	}
	s.active = true
	s.plan = plan
	s.building = building
	s.current = plan.InitialLevel()
	s.reveal(vis)
	return true
}

// SetFloor shows level and hides every other floor of the plan.
func (s *Session) SetFloor(level int, vis *visibility.Set) error {
	if !s.active {
		return ErrNoFloorPlan
	}
	if _, ok := s.plan.Floor(level); !ok {
		return fmt.Errorf("%w: level %d of %s", ErrUnknownFloor, level, s.plan.BuildingID)
	}
	s.current = level
	s.reveal(vis)
	return nil
}

// Close hides every floor of the plan and re-shows the restore layers.
// It reports whether a plan was open.
func (s *Session) Close(vis *visibility.Set, restore []string) bool {
	if !s.active {
		return false
	}
	s.hideFloors(vis)
	for _, name := range restore {
		vis.Show(name)
	}
	*s = Session{}
	return true
}

// Contains reports whether pt lies inside the active building outline.
func (s *Session) Contains(pt orb.Point) bool {
	return s.active && s.building != nil && spatial.Contains(s.building, pt)
}

// OwnsLayer reports whether layer is a floor of the active plan.
func (s *Session) OwnsLayer(layer string) bool {
	return s.active && s.plan.HasFloorLayer(layer)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	if !s.active {
		return State{}
	}
	return State{
		Active:       true,
		BuildingID:   s.plan.BuildingID,
		BuildingName: s.plan.BuildingName,
		CurrentFloor: s.current,
		Floors:       append([]registry.Floor(nil), s.plan.Floors...),
	}
}

func (s *Session) reveal(vis *visibility.Set) {
	for _, f := range s.plan.Floors {
		if f.Level == s.current {
			vis.Show(f.LayerName)
		} else {
			vis.Hide(f.LayerName)
		}
	}
}

func (s *Session) hideFloors(vis *visibility.Set) {
	for _, f := range s.plan.Floors {
		vis.Hide(f.LayerName)
	}
}

// LoadFloors loads a plan's floor layers one after another. A failed floor
// does not stop the others; the errors are joined.
func LoadFloors(ctx context.Context, l Loader, plan registry.FloorPlan) error {
	var errs []error
	for _, f := range plan.Floors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.EnsureLoaded(ctx, f.LayerName); err != nil {
			errs = append(errs, fmt.Errorf("floor %d: %w", f.Level, err))
		}
	}
	return errors.Join(errs...)
}
