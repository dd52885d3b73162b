// Package panel projects a selected feature into what the info panel and
// POI menu show. It holds no state of its own.
package panel

import (
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/templates"
)

const (
	defaultSection  = "basic"
	unknownPriority = 999
)

// Field is one displayed property.
type Field struct {
	Key      string   `json:"key" doc:"Property name"`
	Label    string   `json:"label" doc:"Display label"`
	Icon     string   `json:"icon,omitempty" doc:"Icon name"`
	Type     string   `json:"type,omitempty" doc:"Display type: contact, boolean, list, image, currency"`
	Priority float64  `json:"priority" doc:"Sort priority, lower first"`
	Value    any      `json:"value" doc:"Raw value"`
	Text     string   `json:"text" doc:"Formatted value"`
	Items    []string `json:"items,omitempty" doc:"List entries for list fields"`
	Href     string   `json:"href,omitempty" doc:"Link target for contact fields"`
	External bool     `json:"external,omitempty" doc:"Whether the link opens a new window"`
	Image    string   `json:"image,omitempty" doc:"Image URL for image fields"`
}

// Section is a titled group of fields.
type Section struct {
	ID       string  `json:"id" doc:"Section identifier"`
	Title    string  `json:"title" doc:"Section title"`
	Icon     string  `json:"icon,omitempty" doc:"Icon name"`
	Priority float64 `json:"priority" doc:"Sort priority, lower first"`
	Fields   []Field `json:"fields" doc:"Fields ordered by priority"`
}

// View is the info panel content for one feature.
type View struct {
	Layer      string            `json:"layer" doc:"Layer name"`
	LayerTitle string            `json:"layerTitle" doc:"Layer display name"`
	LayerIcon  string            `json:"layerIcon,omitempty" doc:"Layer icon"`
	Category   registry.Category `json:"category" doc:"Layer category"`
	FeatureID  string            `json:"featureId" doc:"Feature id"`
	Name       string            `json:"name" doc:"Feature display name"`
	Sections   []Section         `json:"sections" doc:"Property sections"`
}

// Item is one entry of the POI menu.
type Item struct {
	Layer string `json:"layer" doc:"Layer name"`
	ID    string `json:"id" doc:"Feature id"`
	Name  string `json:"name" doc:"Display name"`
	Icon  string `json:"icon,omitempty" doc:"Layer icon"`
}

// Menu is the POI menu listing features inside a building.
type Menu struct {
	Visible      bool         `json:"visible" doc:"Whether the menu is shown"`
	Building     features.Ref `json:"building" doc:"Building the menu belongs to"`
	BuildingName string       `json:"buildingName,omitempty" doc:"Building display name"`
	Items        []Item       `json:"items" doc:"Features inside the building"`
	SelectURL    string       `json:"-"`
}

// Presenter builds views from the registry's display configuration.
type Presenter struct {
	reg      *registry.Registry
	renderer *templates.Renderer
}

var errNoRenderer = errors.New("presenter has no fragment renderer")

// New creates a presenter. renderer may be nil when HTML is not needed.
func New(reg *registry.Registry, renderer *templates.Renderer) *Presenter {
	return &Presenter{reg: reg, renderer: renderer}
}

// View projects f. Geometry, osm_* keys and empty values are dropped;
// fields are ordered by priority and grouped by section.
func (p *Presenter) View(f *features.Feature) View {
	v := View{
		Layer:     f.Layer,
		Category:  f.Category,
		FeatureID: f.ID,
		Name:      f.Name(),
	}
	if l, ok := p.reg.Layer(f.Layer); ok {
		v.LayerTitle = l.Title
		v.LayerIcon = l.Icon
	} else {
		v.LayerTitle = f.Layer
	}

	props := f.Props.Map()
	var fields []Field
	for _, key := range f.Props.Keys() {
		if key == "geometry" || strings.HasPrefix(key, "osm_") || empty(props[key]) {
			continue
		}
		fields = append(fields, p.field(key, props[key]))
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Priority < fields[j].Priority
	})

	bySection := map[string]*Section{}
	for _, fd := range fields {
		id := p.sectionOf(fd.Key)
		s, ok := bySection[id]
		if !ok {
			s = p.section(id)
			bySection[id] = s
		}
		s.Fields = append(s.Fields, fd)
	}
	for _, s := range bySection {
		v.Sections = append(v.Sections, *s)
	}
	sort.Slice(v.Sections, func(i, j int) bool {
		if v.Sections[i].Priority != v.Sections[j].Priority {
			return v.Sections[i].Priority < v.Sections[j].Priority
		}
		return v.Sections[i].ID < v.Sections[j].ID
	})
	return v
}

func (p *Presenter) sectionOf(key string) string {
	if cfg, ok := p.reg.Fields[key]; ok && cfg.Section != "" {
		return cfg.Section
	}
	return defaultSection
}

func (p *Presenter) section(id string) *Section {
	s := &Section{ID: id, Title: id, Priority: unknownPriority}
	if cfg, ok := p.reg.Sections[id]; ok {
		s.Title = cfg.Title
		s.Icon = cfg.Icon
		s.Priority = cfg.Priority
	}
	return s
}

func (p *Presenter) field(key string, value any) Field {
	cfg, ok := p.reg.Fields[key]
	if !ok {
		cfg = registry.FieldDisplay{Label: capitalize(key), Icon: "info", Priority: unknownPriority}
	}
	f := Field{
		Key:      key,
		Label:    cfg.Label,
		Icon:     cfg.Icon,
		Type:     cfg.Type,
		Priority: cfg.Priority,
		Value:    value,
		Text:     features.Stringify(value),
	}
	switch cfg.Type {
	case "contact":
		switch cfg.Icon {
		case "phone":
			f.Href = "tel:" + f.Text
		case "mail":
			f.Href = "mailto:" + f.Text
		case "globe":
			f.Href = f.Text
			f.External = true
			f.Text = "Открыть сайт"
		}
	case "boolean":
		if b, ok := value.(bool); ok {
			f.Text = "Нет"
			if b {
				f.Text = "Да"
			}
		}
	case "list":
		if list, ok := value.([]any); ok {
			for _, e := range list {
				if s := features.Stringify(e); s != "" {
					f.Items = append(f.Items, s)
				}
			}
		}
	case "image":
		f.Image = "/images/" + f.Text
	case "currency":
		f.Text += " ₽"
	}
	return f
}

// Menu lists the features inside building. The menu is visible only when
// the list is non-empty.
func (p *Presenter) Menu(building *features.Feature, inside []*features.Feature) Menu {
	m := Menu{Items: []Item{}}
	if building == nil {
		return m
	}
	m.Building = building.Ref()
	m.BuildingName = building.Name()
	for _, f := range inside {
		item := Item{Layer: f.Layer, ID: f.ID, Name: f.Name()}
		if l, ok := p.reg.Layer(f.Layer); ok {
			item.Icon = l.Icon
		}
		m.Items = append(m.Items, item)
	}
	m.Visible = len(m.Items) > 0
	return m
}

// HTML renders the info panel fragment.
func (p *Presenter) HTML(v View) (string, error) {
	if p.renderer == nil {
		return "", errNoRenderer
	}
	return p.renderer.Render("info-panel", v)
}

// MenuHTML renders the POI menu fragment.
func (p *Presenter) MenuHTML(m Menu) (string, error) {
	if p.renderer == nil {
		return "", errNoRenderer
	}
	return p.renderer.Render("poi-menu", m)
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
