package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed campus.yaml
var defaultConfig []byte

// ErrUnknownLayer is returned for layer names absent from the registry.
var ErrUnknownLayer = errors.New("unknown layer")

// Registry is the immutable campus configuration.
type Registry struct {
	Map        MapView
	Search     SearchConfig
	Categories []CategoryGroup
	Fields     map[string]FieldDisplay
	Sections   map[string]Section

	layers         []Layer
	byName         map[string]int
	floorPlans     []FloorPlan
	defaultVisible []string
	toggleAll      []string
	poiLayers      []string
	restoreOnClose []string
}

// layerEntry is the YAML shape of a layer; Interactive defaults per group.
type layerEntry struct {
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	URL         string   `yaml:"url"`
	Category    Category `yaml:"category"`
	Role        Role     `yaml:"role"`
	Interactive *bool    `yaml:"interactive"`
	ZIndex      int      `yaml:"zIndex"`
	Icon        string   `yaml:"icon"`
	Style       Style    `yaml:"style"`
}

type document struct {
	Map    MapView `yaml:"map"`
	Layers struct {
		Base        []layerEntry `yaml:"base"`
		Interactive []layerEntry `yaml:"interactive"`
		Floors      []layerEntry `yaml:"floors"`
	} `yaml:"layers"`
	DefaultVisible []string                `yaml:"defaultVisible"`
	ToggleAll      []string                `yaml:"toggleAll"`
	POILayers      []string                `yaml:"poiLayers"`
	RestoreOnClose []string                `yaml:"restoreOnClose"`
	FloorPlans     []FloorPlan             `yaml:"floorPlans"`
	Categories     []CategoryGroup         `yaml:"categories"`
	Search         SearchConfig            `yaml:"search"`
	Sections       map[string]Section      `yaml:"sections"`
	Fields         map[string]FieldDisplay `yaml:"fields"`
}

// Default returns the embedded campus registry.
func Default() (*Registry, error) {
	return Parse(defaultConfig)
}

// Load reads a registry from a YAML file. An empty path loads the default.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	return Parse(data)
}

// Parse builds and validates a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}

	r := &Registry{
		Map:            doc.Map,
		Search:         doc.Search,
		Categories:     doc.Categories,
		Fields:         doc.Fields,
		Sections:       doc.Sections,
		byName:         make(map[string]int),
		floorPlans:     doc.FloorPlans,
		defaultVisible: doc.DefaultVisible,
		toggleAll:      doc.ToggleAll,
		poiLayers:      doc.POILayers,
		restoreOnClose: doc.RestoreOnClose,
	}
	r.applyDefaults()

	groups := []struct {
		group   Group
		entries []layerEntry
	}{
		{GroupBase, doc.Layers.Base},
		{GroupInteractive, doc.Layers.Interactive},
		{GroupFloor, doc.Layers.Floors},
	}
	for _, g := range groups {
		for _, e := range g.entries {
			if err := r.add(g.group, e); err != nil {
				return nil, err
			}
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) add(group Group, e layerEntry) error {
	if e.Name == "" {
		return fmt.Errorf("layer in %s group has no name", group)
	}
	if _, dup := r.byName[e.Name]; dup {
		return fmt.Errorf("duplicate layer %q", e.Name)
	}
	interactive := group != GroupBase
	if e.Interactive != nil {
		interactive = *e.Interactive
	}
	l := Layer{
		Name:        e.Name,
		Title:       e.Title,
		URL:         e.URL,
		Category:    e.Category,
		Role:        e.Role,
		Group:       group,
		Interactive: interactive,
		ZIndex:      e.ZIndex,
		Icon:        e.Icon,
		Style:       e.Style,
	}
	if l.Title == "" {
		l.Title = l.Name
	}
	if group == GroupFloor {
		l.Role = RoleFloor
	}
	if l.Role == "" {
		l.Role = InferRole(l.Name, l.Category)
	}
	r.byName[l.Name] = len(r.layers)
	r.layers = append(r.layers, l)
	return nil
}

func (r *Registry) applyDefaults() {
	s := &r.Search
	if s.MinQueryLength <= 0 {
		s.MinQueryLength = 2
	}
	if s.MaxResults <= 0 {
		s.MaxResults = 50
	}
	if s.MaxHistory <= 0 {
		s.MaxHistory = 10
	}
	if s.MaxSuggestions <= 0 {
		s.MaxSuggestions = 5
	}
	if s.Fuzziness < 0 || s.Fuzziness > 2 {
		s.Fuzziness = 1
	}
	if len(s.Fields) == 0 {
		s.Fields = []SearchField{
			{Field: "name", Weight: 100},
			{Field: "title", Weight: 90},
			{Field: "address", Weight: 70},
			{Field: "description", Weight: 40},
		}
	}
	if _, ok := s.Filter("all"); !ok {
		s.Filters = append([]SearchFilter{{ID: "all", Label: "All", Layers: []string{"*"}}}, s.Filters...)
	}
	if r.Map.DataProjection == "" {
		r.Map.DataProjection = "EPSG:4326"
	}
	if r.Map.ClearDelayMs <= 0 {
		r.Map.ClearDelayMs = 300
	}
	if r.Fields == nil {
		r.Fields = map[string]FieldDisplay{}
	}
	if r.Sections == nil {
		r.Sections = map[string]Section{"basic": {Title: "Basic", Priority: 1}}
	}
}

// InferRole derives a role for configurations that predate explicit roles.
// It runs once at load time; nothing downstream inspects layer names.
func InferRole(name string, category Category) Role {
	switch {
	case strings.Contains(name, "building"):
		return RoleBuilding
	case category == CategoryTransport:
		return RoleTransport
	case category == CategoryPOI:
		return RolePOI
	case category == CategoryNature:
		return RoleNatural
	default:
		return RoleInfrastructure
	}
}

// Validate checks that every reference in the registry names a known layer
// of the right group.
func (r *Registry) Validate() error {
	var errs []error
	check := func(list string, names []string) {
		for _, n := range names {
			if _, ok := r.byName[n]; !ok {
				errs = append(errs, fmt.Errorf("%s: %w %q", list, ErrUnknownLayer, n))
			}
		}
	}
	check("defaultVisible", r.defaultVisible)
	check("toggleAll", r.toggleAll)
	check("poiLayers", r.poiLayers)
	check("restoreOnClose", r.restoreOnClose)
	for _, c := range r.Categories {
		check("categories."+c.ID, c.Layers)
	}
	for _, f := range r.Search.Filters {
		if !f.AllLayers() {
			check("search.filters."+f.ID, f.Layers)
		}
	}

	for _, n := range r.toggleAll {
		l, ok := r.Layer(n)
		switch {
		case ok && l.IsBase():
			errs = append(errs, fmt.Errorf("toggleAll: base layer %q cannot be bulk toggled", n))
		case ok && l.Group == GroupFloor:
			errs = append(errs, fmt.Errorf("toggleAll: floor layer %q cannot be bulk toggled", n))
		}
	}

	seenFloor := map[string]string{}
	for _, p := range r.floorPlans {
		if p.BuildingID == "" {
			errs = append(errs, errors.New("floor plan without buildingId"))
		}
		if len(p.Floors) == 0 {
			errs = append(errs, fmt.Errorf("floor plan %q has no floors", p.BuildingID))
		}
		check("floorPlans."+p.BuildingID+".buildingLayers", p.BuildingLayers)
		levels := map[int]bool{}
		for _, f := range p.Floors {
			l, ok := r.Layer(f.LayerName)
			if !ok {
				errs = append(errs, fmt.Errorf("floorPlans.%s: %w %q", p.BuildingID, ErrUnknownLayer, f.LayerName))
				continue
			}
			if l.Group != GroupFloor {
				errs = append(errs, fmt.Errorf("floorPlans.%s: layer %q is not declared under floors", p.BuildingID, f.LayerName))
			}
			if levels[f.Level] {
				errs = append(errs, fmt.Errorf("floorPlans.%s: duplicate level %d", p.BuildingID, f.Level))
			}
			levels[f.Level] = true
			if owner, taken := seenFloor[f.LayerName]; taken && owner != p.BuildingID {
				errs = append(errs, fmt.Errorf("floor layer %q shared by %q and %q", f.LayerName, owner, p.BuildingID))
			}
			seenFloor[f.LayerName] = p.BuildingID
		}
	}
	return errors.Join(errs...)
}

// Layer returns the layer named name.
func (r *Registry) Layer(name string) (Layer, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Layer{}, false
	}
	return r.layers[i], true
}

// Has reports whether name is a registered layer.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Layers returns every layer: base, then interactive, then floors, each in
// configuration order.
func (r *Registry) Layers() []Layer {
	return append([]Layer(nil), r.layers...)
}

// Group returns the layers declared in group, in configuration order.
func (r *Registry) Group(g Group) []Layer {
	var out []Layer
	for _, l := range r.layers {
		if l.Group == g {
			out = append(out, l)
		}
	}
	return out
}

// Order returns the position of a layer in configuration order, used to
// break z-index ties. Unknown layers return -1.
func (r *Registry) Order(name string) int {
	if i, ok := r.byName[name]; ok {
		return i
	}
	return -1
}

// InitialVisible is every base layer plus the default-visible list.
func (r *Registry) InitialVisible() []string {
	var out []string
	for _, l := range r.layers {
		if l.IsBase() {
			out = append(out, l.Name)
		}
	}
	return append(out, r.defaultVisible...)
}

// ToggleAllLayers is the allowlist flipped by the bulk toggle.
func (r *Registry) ToggleAllLayers() []string { return append([]string(nil), r.toggleAll...) }

// POILayers is the allowlist scanned for features inside a building.
func (r *Registry) POILayers() []string { return append([]string(nil), r.poiLayers...) }

// RestoreOnClose is the building layers re-shown when a floor plan closes.
func (r *Registry) RestoreOnClose() []string { return append([]string(nil), r.restoreOnClose...) }

// FloorPlans returns every registered floor plan.
func (r *Registry) FloorPlans() []FloorPlan { return append([]FloorPlan(nil), r.floorPlans...) }

// FloorPlanByLayer returns the floor plan opened by clicks on building layer.
func (r *Registry) FloorPlanByLayer(layer string) (FloorPlan, bool) {
	for _, p := range r.floorPlans {
		for _, l := range p.BuildingLayers {
			if l == layer {
				return p, true
			}
		}
	}
	return FloorPlan{}, false
}

// FloorPlanByID returns the floor plan for a building id.
func (r *Registry) FloorPlanByID(id string) (FloorPlan, bool) {
	for _, p := range r.floorPlans {
		if p.BuildingID == id {
			return p, true
		}
	}
	return FloorPlan{}, false
}

// HasFloorPlan reports whether clicks on layer open a floor plan.
func (r *Registry) HasFloorPlan(layer string) bool {
	_, ok := r.FloorPlanByLayer(layer)
	return ok
}

// SearchableLayers returns the interactive non-floor layers fed to the
// search index, sorted by name.
func (r *Registry) SearchableLayers() []string {
	var out []string
	for _, l := range r.layers {
		if l.Interactive && l.Group == GroupInteractive {
			out = append(out, l.Name)
		}
	}
	sort.Strings(out)
	return out
}

// FloorPlanByFloorLayer returns the floor plan owning a floor layer.
func (r *Registry) FloorPlanByFloorLayer(layer string) (FloorPlan, bool) {
	for _, p := range r.floorPlans {
		if p.HasFloorLayer(layer) {
			return p, true
		}
	}
	return FloorPlan{}, false
}
