// Package registry holds the static campus configuration: layers, floor
// plans, search settings and panel field display rules.
package registry

// Category groups layers for the category panel and search facets.
type Category string

const (
	CategoryUniversity     Category = "university"
	CategoryTransport      Category = "transport"
	CategoryPOI            Category = "poi"
	CategoryNature         Category = "nature"
	CategoryInfrastructure Category = "infrastructure"
)

// Role is the semantic kind of a layer. All behavioural branching (building
// detection, POI containment, floor handling) is done on Role.
type Role string

const (
	RoleBuilding       Role = "building"
	RoleTransport      Role = "transport"
	RolePOI            Role = "poi"
	RoleNatural        Role = "natural"
	RoleInfrastructure Role = "infrastructure"
	RoleFloor          Role = "floor"
)

// Group is the configuration section a layer was declared in.
type Group string

const (
	GroupBase        Group = "base"
	GroupInteractive Group = "interactive"
	GroupFloor       Group = "floor"
)

// Layer is one named, styled collection of features loaded from a single
// GeoJSON source. Immutable after the registry is built.
type Layer struct {
	Name        string   `json:"name" yaml:"name" doc:"Unique layer name" example:"main_building"`
	Title       string   `json:"title" yaml:"title" doc:"Display name" example:"Главное здание"`
	URL         string   `json:"url" yaml:"url" doc:"Relative source URL of the GeoJSON document" example:"data/buildings/university/main_building.geojson"`
	Category    Category `json:"category" yaml:"category" enum:"university,transport,poi,nature,infrastructure" doc:"Layer category"`
	Role        Role     `json:"role" yaml:"role" enum:"building,transport,poi,natural,infrastructure,floor" doc:"Semantic role"`
	Group       Group    `json:"group" yaml:"-" enum:"base,interactive,floor" doc:"Configuration group"`
	Interactive bool     `json:"interactive" yaml:"-" doc:"Whether features respond to click selection"`
	ZIndex      int      `json:"zIndex" yaml:"zIndex" doc:"Stacking order, higher is on top" example:"110"`
	Icon        string   `json:"icon,omitempty" yaml:"icon" doc:"Icon name" example:"building"`
	Style       Style    `json:"style" yaml:"style" doc:"Rendering style"`
}

// IsBase reports whether the layer is a background layer.
func (l Layer) IsBase() bool { return l.Group == GroupBase }

// Style is the static rendering style of a layer.
type Style struct {
	FillColor   string       `json:"fillColor" yaml:"fillColor" doc:"Fill color (CSS)" example:"#667eea"`
	FillOpacity float64      `json:"fillOpacity" yaml:"fillOpacity" minimum:"0" maximum:"1" doc:"Fill opacity (0-1)"`
	StrokeColor string       `json:"strokeColor" yaml:"strokeColor" doc:"Stroke color (CSS)" example:"#4834d4"`
	StrokeWidth float64      `json:"strokeWidth" yaml:"strokeWidth" doc:"Stroke width in pixels"`
	Rules       []RenderRule `json:"rules,omitempty" yaml:"rules" doc:"Property-driven style overrides"`
}

// RenderRule overrides the style for features whose property matches a value.
type RenderRule struct {
	FilterProp  string  `json:"filterProp" yaml:"filterProp" doc:"Property name to filter on"`
	FilterValue string  `json:"filterValue" yaml:"filterValue" doc:"Value to match"`
	Fill        string  `json:"fill" yaml:"fill" doc:"Fill color (CSS)"`
	Stroke      string  `json:"stroke,omitempty" yaml:"stroke" doc:"Stroke color (CSS)"`
	Opacity     float64 `json:"opacity,omitempty" yaml:"opacity" doc:"Opacity (0-1)"`
	Width       float64 `json:"width,omitempty" yaml:"width" doc:"Line width"`
}

// Floor is one level of a floor plan.
type Floor struct {
	Level     int    `json:"level" yaml:"level" doc:"Floor level" example:"1"`
	Name      string `json:"name" yaml:"name" doc:"Display name" example:"1-й этаж"`
	LayerName string `json:"layerName" yaml:"layerName" doc:"Layer holding this floor's features" example:"korpus1_level1"`
}

// FloorPlan registers per-floor layers against the building layers that
// open it.
type FloorPlan struct {
	BuildingID     string   `json:"buildingId" yaml:"buildingId" doc:"Building identifier" example:"korpus1"`
	BuildingName   string   `json:"buildingName" yaml:"buildingName" doc:"Building display name"`
	BuildingLayers []string `json:"buildingLayers" yaml:"buildingLayers" doc:"Building layers whose features open this plan"`
	Floors         []Floor  `json:"floors" yaml:"floors" doc:"Floors ordered as configured"`
}

// Floor returns the floor registered at level.
func (p FloorPlan) Floor(level int) (Floor, bool) {
	for _, f := range p.Floors {
		if f.Level == level {
			return f, true
		}
	}
	return Floor{}, false
}

// InitialLevel is level 1 when registered, otherwise the lowest level.
func (p FloorPlan) InitialLevel() int {
	if _, ok := p.Floor(1); ok {
		return 1
	}
	lowest := 0
	for i, f := range p.Floors {
		if i == 0 || f.Level < lowest {
			lowest = f.Level
		}
	}
	return lowest
}

// HasFloorLayer reports whether layer is one of the plan's floors.
func (p FloorPlan) HasFloorLayer(layer string) bool {
	for _, f := range p.Floors {
		if f.LayerName == layer {
			return true
		}
	}
	return false
}

// CategoryGroup is one section of the category panel.
type CategoryGroup struct {
	ID     string   `json:"id" yaml:"id" doc:"Category identifier" example:"university"`
	Name   string   `json:"name" yaml:"name" doc:"Display name"`
	Icon   string   `json:"icon" yaml:"icon" doc:"Icon name"`
	Color  string   `json:"color" yaml:"color" doc:"Accent color (CSS)"`
	Layers []string `json:"layers" yaml:"layers" doc:"Layers listed under this category"`
}

// TileConfig describes the raster basemap.
type TileConfig struct {
	URL         string `json:"url" yaml:"url" doc:"Local tile URL template"`
	FallbackURL string `json:"fallbackUrl" yaml:"fallbackUrl" doc:"Public tile URL template used when the local tile is missing"`
	Attribution string `json:"attribution" yaml:"attribution" doc:"Attribution text"`
}

// MapView is the initial map view and the projection settings for data.
type MapView struct {
	Center         [2]float64 `json:"center" yaml:"center" doc:"Center in EPSG:3857"`
	Zoom           float64    `json:"zoom" yaml:"zoom" doc:"Initial zoom"`
	MinZoom        float64    `json:"minZoom" yaml:"minZoom" doc:"Minimum zoom"`
	MaxZoom        float64    `json:"maxZoom" yaml:"maxZoom" doc:"Maximum zoom"`
	Extent         [4]float64 `json:"extent" yaml:"extent" doc:"Campus extent in EPSG:3857 (minX, minY, maxX, maxY)"`
	DataProjection string     `json:"dataProjection" yaml:"dataProjection" doc:"Projection of source documents" example:"EPSG:4326"`
	HitTolerance   float64    `json:"hitTolerance" yaml:"hitTolerance" doc:"Default click tolerance in map units"`
	ClearDelayMs   int        `json:"clearDelayMs" yaml:"clearDelayMs" doc:"Delay before a dismissed selection is cleared"`
	Tiles          TileConfig `json:"tiles" yaml:"tiles" doc:"Basemap tiles"`
}

// SearchField is one indexed property with its relative weight.
type SearchField struct {
	Field  string  `json:"field" yaml:"field" doc:"Property name" example:"name"`
	Weight float64 `json:"weight" yaml:"weight" doc:"Relative weight" example:"100"`
}

// SearchFilter is a category facet over search results.
type SearchFilter struct {
	ID     string   `json:"id" yaml:"id" doc:"Filter identifier" example:"transport"`
	Label  string   `json:"label" yaml:"label" doc:"Display label"`
	Icon   string   `json:"icon,omitempty" yaml:"icon" doc:"Icon name"`
	Color  string   `json:"color,omitempty" yaml:"color" doc:"Accent color (CSS)"`
	Layers []string `json:"layers" yaml:"layers" doc:"Allowed layers, or [\"*\"] for all"`
}

// AllLayers reports whether the filter admits every layer.
func (f SearchFilter) AllLayers() bool {
	return len(f.Layers) == 1 && f.Layers[0] == "*"
}

// Allows reports whether results from layer pass the filter.
func (f SearchFilter) Allows(layer string) bool {
	if f.AllLayers() {
		return true
	}
	for _, l := range f.Layers {
		if l == layer {
			return true
		}
	}
	return false
}

// QuickSearch is a canned query shown before the user types.
type QuickSearch struct {
	Text   string `json:"text" yaml:"text" doc:"Button text"`
	Icon   string `json:"icon" yaml:"icon" doc:"Icon name"`
	Query  string `json:"query" yaml:"query" doc:"Query to run"`
	Filter string `json:"filter" yaml:"filter" doc:"Filter to apply"`
}

// SearchConfig tunes the search index.
type SearchConfig struct {
	MinQueryLength int                 `json:"minQueryLength" yaml:"minQueryLength" doc:"Queries shorter than this return no results"`
	MaxResults     int                 `json:"maxResults" yaml:"maxResults" doc:"Upper bound on results per query"`
	MaxHistory     int                 `json:"maxHistory" yaml:"maxHistory" doc:"Search history length"`
	MaxSuggestions int                 `json:"maxSuggestions" yaml:"maxSuggestions" doc:"Suggestions per query"`
	Fuzziness      int                 `json:"fuzziness" yaml:"fuzziness" doc:"Edit distance tolerated per term"`
	Fields         []SearchField       `json:"fields" yaml:"fields" doc:"Weighted fields"`
	Filters        []SearchFilter      `json:"filters" yaml:"filters" doc:"Category facets"`
	QuickSearches  []QuickSearch       `json:"quickSearches" yaml:"quickSearches" doc:"Canned queries"`
	PopularQueries []string            `json:"popularQueries" yaml:"popularQueries" doc:"Popular queries"`
	Synonyms       map[string][]string `json:"synonyms,omitempty" yaml:"synonyms" doc:"Query term synonyms"`
	StopWords      []string            `json:"stopWords,omitempty" yaml:"stopWords" doc:"Terms dropped from queries"`
}

// Filter returns the facet with id.
func (c SearchConfig) Filter(id string) (SearchFilter, bool) {
	for _, f := range c.Filters {
		if f.ID == id {
			return f, true
		}
	}
	return SearchFilter{}, false
}

// FieldDisplay configures how a property is shown in the info panel.
type FieldDisplay struct {
	Label    string  `json:"label" yaml:"label"`
	Icon     string  `json:"icon,omitempty" yaml:"icon"`
	Priority float64 `json:"priority" yaml:"priority"`
	Section  string  `json:"section,omitempty" yaml:"section"`
	Type     string  `json:"type,omitempty" yaml:"type"`
}

// Section is a group of fields in the info panel.
type Section struct {
	Title    string  `json:"title" yaml:"title"`
	Icon     string  `json:"icon,omitempty" yaml:"icon"`
	Priority float64 `json:"priority" yaml:"priority"`
}
