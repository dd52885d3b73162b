// Package features loads per-layer GeoJSON into memory and owns the
// resulting features for the lifetime of the process.
package features

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-campus/internal/registry"
)

// Feature is one geometric object of a layer. Geometry is in EPSG:3857.
type Feature struct {
	ID       string
	Layer    string
	Category registry.Category
	Geometry orb.Geometry
	Props    Properties
}

// Name is the feature's display name, falling back to a generic label
// naming its layer.
func (f *Feature) Name() string {
	return f.Props.DisplayName(fmt.Sprintf("Объект %s", f.Layer))
}

// GeoJSON converts the feature back to a GeoJSON feature in WGS84, tagged
// with its layer and category.
func (f *Feature) GeoJSON() *geojson.Feature {
	g := project.Geometry(orb.Clone(f.Geometry), project.Mercator.ToWGS84)
	out := geojson.NewFeature(g)
	out.ID = f.ID
	out.Properties = f.Props.Map()
	out.Properties["layer"] = f.Layer
	out.Properties["category"] = string(f.Category)
	return out
}

// Ref identifies a feature across layers.
type Ref struct {
	Layer string `json:"layer" doc:"Layer name" example:"main_building"`
	ID    string `json:"id" doc:"Feature id, unique within the layer" example:"main_building_0"`
}

// Ref returns the feature's cross-layer identity.
func (f *Feature) Ref() Ref { return Ref{Layer: f.Layer, ID: f.ID} }
