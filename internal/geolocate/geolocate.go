// Package geolocate turns a browser location reading into a map position.
package geolocate

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/registry"
)

// Browser geolocation error codes.
const (
	PermissionDenied    = 1
	PositionUnavailable = 2
	Timeout             = 3
)

// MinZoom is the zoom the map animates to at least when centering on a fix.
const MinZoom = 17

var messages = map[int]string{
	PermissionDenied:    "Доступ к геолокации отклонен",
	PositionUnavailable: "Местоположение недоступно",
	Timeout:             "Превышено время ожидания",
}

const unknownMessage = "Не удалось определить местоположение"

// Reading is what the browser reported: a position, or an error code.
// A reading with neither is treated as an unavailable position.
type Reading struct {
	Lon       *float64 `json:"lon,omitempty" doc:"Longitude (WGS84)" minimum:"-180" maximum:"180"`
	Lat       *float64 `json:"lat,omitempty" doc:"Latitude (WGS84)" minimum:"-90" maximum:"90"`
	Accuracy  float64  `json:"accuracy,omitempty" doc:"Reported accuracy in metres"`
	ErrorCode int      `json:"errorCode,omitempty" doc:"Browser error code: 1 permission denied, 2 unavailable, 3 timeout"`
}

// At returns a successful reading at lon, lat.
func At(lon, lat float64) Reading {
	return Reading{Lon: &lon, Lat: &lat}
}

// Result is the interpretation of a reading. Either Error is set or the
// position fields are.
type Result struct {
	OK           bool          `json:"ok" doc:"Whether a position was obtained"`
	Error        string        `json:"error,omitempty" doc:"Error kind"`
	Message      string        `json:"message,omitempty" doc:"User-facing message"`
	Lon          float64       `json:"lon,omitempty" doc:"Longitude (WGS84)"`
	Lat          float64       `json:"lat,omitempty" doc:"Latitude (WGS84)"`
	Position     orb.Point     `json:"position,omitempty" doc:"Position in EPSG:3857"`
	WithinCampus bool          `json:"withinCampus" doc:"Whether the position lies inside the campus extent"`
	Building     *features.Ref `json:"building,omitempty" doc:"Building containing the position"`
	BuildingName string        `json:"buildingName,omitempty" doc:"Name of that building"`
	Zoom         float64       `json:"zoom,omitempty" doc:"Zoom to center the map at"`
}

// Buildings finds the building containing a point.
type Buildings interface {
	BuildingAt(pt orb.Point) *features.Feature
}

// Message returns the user-facing message for a browser error code.
func Message(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return unknownMessage
}

func errorKind(code int) string {
	switch code {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func unavailable() Result {
	return Result{Error: errorKind(PositionUnavailable), Message: Message(PositionUnavailable)}
}

// Locate interprets r against the campus view. buildings may be nil.
func Locate(r Reading, view registry.MapView, buildings Buildings) Result {
	if r.ErrorCode != 0 {
		return Result{Error: errorKind(r.ErrorCode), Message: Message(r.ErrorCode)}
	}
	if r.Lon == nil || r.Lat == nil {
		return unavailable()
	}
	lon, lat := *r.Lon, *r.Lat
	if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lon) > 180 || math.Abs(lat) > 90 {
		return unavailable()
	}

	pos := project.WGS84.ToMercator(orb.Point{lon, lat})
	res := Result{
		OK:       true,
		Lon:      lon,
		Lat:      lat,
		Position: pos,
		Zoom:     math.Max(view.Zoom, MinZoom),
	}
	ext := orb.Bound{
		Min: orb.Point{view.Extent[0], view.Extent[1]},
		Max: orb.Point{view.Extent[2], view.Extent[3]},
	}
	res.WithinCampus = !ext.IsZero() && ext.Contains(pos)
	if res.WithinCampus && buildings != nil {
		if b := buildings.BuildingAt(pos); b != nil {
			ref := b.Ref()
			res.Building = &ref
			res.BuildingName = b.Name()
		}
	}
	return res
}
