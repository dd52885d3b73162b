// Package spatial resolves map clicks to features and finds the points of
// interest that lie inside a building.
package spatial

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/registry"
)

// Outcome classifies a hit test.
type Outcome int

const (
	NoHit Outcome = iota
	NonInteractiveHit
	InteractiveHit
)

func (o Outcome) String() string {
	switch o {
	case NonInteractiveHit:
		return "non_interactive"
	case InteractiveHit:
		return "interactive"
	default:
		return "none"
	}
}

// Hit is the result of a hit test. Feature and Layer are set only for
// InteractiveHit.
type Hit struct {
	Outcome Outcome
	Feature *features.Feature
	Layer   registry.Layer
}

// Source is the read side of the feature store.
type Source interface {
	Features(layer string) ([]*features.Feature, error)
}

// Visible reports whether a layer is rendered.
type Visible interface {
	Has(layer string) bool
}

// Resolver performs spatial queries against loaded features.
type Resolver struct {
	reg *registry.Registry
	src Source
	log *zap.Logger
}

// New creates a resolver.
func New(reg *registry.Registry, src Source, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{reg: reg, src: src, log: log}
}

// HitTest scans visible, loaded layers from the top of the stack down and
// returns the first interactive feature under pt. Features of a layer are
// scanned last-drawn first. Hits on non-interactive layers are remembered
// but never selected.
func (r *Resolver) HitTest(pt orb.Point, tolerance float64, visible Visible) Hit {
	nonInteractive := false
	for _, layer := range r.stack(visible) {
		feats, err := r.src.Features(layer.Name)
		if err != nil {
			continue
		}
		for i := len(feats) - 1; i >= 0; i-- {
			f := feats[i]
			if !r.safely(f, func() bool { return Touches(f.Geometry, pt, tolerance) }) {
				continue
			}
			if !layer.Interactive {
				nonInteractive = true
				break
			}
			return Hit{Outcome: InteractiveHit, Feature: f, Layer: layer}
		}
	}
	if nonInteractive {
		return Hit{Outcome: NonInteractiveHit}
	}
	return Hit{Outcome: NoHit}
}

// stack returns visible layers ordered top first: higher z-index wins,
// and on equal z-index the later registered layer wins.
func (r *Resolver) stack(visible Visible) []registry.Layer {
	var out []registry.Layer
	for _, l := range r.reg.Layers() {
		if visible.Has(l.Name) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex > out[j].ZIndex
		}
		return r.reg.Order(out[i].Name) > r.reg.Order(out[j].Name)
	})
	return out
}

// FeaturesInBuilding returns the features of the POI allowlist that lie
// inside building. Building-role layers are skipped. Point features are
// tested directly; other geometries by their centroid. Layers that are not
// loaded contribute nothing.
func (r *Resolver) FeaturesInBuilding(building *features.Feature) []*features.Feature {
	if building == nil || building.Geometry == nil {
		return nil
	}
	var out []*features.Feature
	for _, name := range r.reg.POILayers() {
		layer, ok := r.reg.Layer(name)
		if !ok || layer.Role == registry.RoleBuilding {
			continue
		}
		feats, err := r.src.Features(name)
		if err != nil {
			continue
		}
		for _, f := range feats {
			inside := r.safely(f, func() bool {
				return Contains(building.Geometry, anchor(f.Geometry))
			})
			if inside {
				out = append(out, f)
			}
		}
	}
	return out
}

// BuildingAt returns the topmost loaded building feature containing pt,
// whether or not its layer is visible.
func (r *Resolver) BuildingAt(pt orb.Point) *features.Feature {
	for _, layer := range r.stack(anyLayer{}) {
		if layer.Role != registry.RoleBuilding {
			continue
		}
		feats, err := r.src.Features(layer.Name)
		if err != nil {
			continue
		}
		for i := len(feats) - 1; i >= 0; i-- {
			f := feats[i]
			if r.safely(f, func() bool { return Contains(f.Geometry, pt) }) {
				return f
			}
		}
	}
	return nil
}

type anyLayer struct{}

func (anyLayer) Has(string) bool { return true }

// safely runs test and reports false when it panics on malformed geometry.
func (r *Resolver) safely(f *features.Feature, test func() bool) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("skipping malformed feature",
				zap.String("layer", f.Layer),
				zap.String("id", f.ID),
				zap.String("panic", fmt.Sprint(rec)))
			ok = false
		}
	}()
	return test()
}

// Contains reports whether pt lies inside an areal geometry. Points and
// lines contain nothing.
func Contains(g orb.Geometry, pt orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	case orb.Ring:
		return planar.RingContains(g, pt)
	case orb.Bound:
		return g.Contains(pt)
	case orb.Collection:
		for _, c := range g {
			if Contains(c, pt) {
				return true
			}
		}
	}
	return false
}

// Touches reports whether pt hits g: inside an areal geometry, or within
// tolerance of its boundary, line or point.
func Touches(g orb.Geometry, pt orb.Point, tolerance float64) bool {
	if g == nil {
		return false
	}
	if Contains(g, pt) {
		return true
	}
	return planar.DistanceFrom(g, pt) <= tolerance
}

func anchor(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	return c
}
