// Package tiler encodes loaded campus layers as Mapbox vector tiles on
// demand. Tiles are cut from the in-memory features, so they always match
// what the feature store holds.
package tiler

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-campus/internal/features"
)

// MaxZoom is the deepest zoom tiles are generated for.
const MaxZoom = 22

// ErrBadTile is returned for tile coordinates outside the zoom's grid.
var ErrBadTile = errors.New("tile out of range")

// Source is the read side of the feature store.
type Source interface {
	Features(layer string) ([]*features.Feature, error)
}

// Tiler cuts vector tiles from a feature source.
type Tiler struct {
	src Source
}

// New creates a tiler.
func New(src Source) *Tiler {
	return &Tiler{src: src}
}

// Tile encodes the features of layer that intersect t as a gzipped MVT
// with a single layer named after it. A tile with no features returns nil
// data and no error.
func (g *Tiler) Tile(layer string, t maptile.Tile) ([]byte, error) {
	if t.Z > MaxZoom || uint64(t.X) >= 1<<t.Z || uint64(t.Y) >= 1<<t.Z {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrBadTile, t.Z, t.X, t.Y)
	}
	feats, err := g.src.Features(layer)
	if err != nil {
		return nil, err
	}

	bound := t.Bound()
	fc := geojson.NewFeatureCollection()
	for _, f := range feats {
		// GeoJSON returns a WGS84 copy, so clipping below never touches
		// the stored geometry.
		gf := f.GeoJSON()
		if gf.Geometry == nil || !geometryIntersectsTile(gf.Geometry, bound) {
			continue
		}
		fc.Append(gf)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	l := mvt.NewLayer(layer, fc)
	if epsilon := simplifyEpsilon(t.Z); epsilon > 0 {
		l.Simplify(simplify.DouglasPeucker(epsilon))
	}
	l.Clip(bound)
	l.ProjectToTile(t)
	l.RemoveEmpty(0.5, 0.5)
	if len(l.Features) == 0 {
		return nil, nil
	}
	return mvt.MarshalGzipped(mvt.Layers{l})
}

// geometryIntersectsTile checks the geometry against the tile more closely
// than a bounding box test for points and polygons.
func geometryIntersectsTile(geom orb.Geometry, tileBound orb.Bound) bool {
	if !geom.Bound().Intersects(tileBound) {
		return false
	}

	switch g := geom.(type) {
	case orb.Point:
		return tileBound.Contains(g)

	case orb.MultiPoint:
		for _, p := range g {
			if tileBound.Contains(p) {
				return true
			}
		}
		return false

	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tileBound.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{
			tileBound.Min,
			{tileBound.Max[0], tileBound.Min[1]},
			tileBound.Max,
			{tileBound.Min[0], tileBound.Max[1]},
			tileBound.Center(),
		}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false

	case orb.MultiPolygon:
		for _, poly := range g {
			if geometryIntersectsTile(poly, tileBound) {
				return true
			}
		}
		return false

	default:
		// lines and collections: trust the bounding box
		return true
	}
}

// simplifyEpsilon returns the Douglas-Peucker tolerance in degrees for a
// zoom. Campus buildings are tens of metres across (~0.0003°), so nothing
// is simplified at street zooms.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 15:
		return 0
	case zoom >= 12:
		return 0.00002
	case zoom >= 8:
		return 0.0002
	default:
		return 0.002
	}
}
