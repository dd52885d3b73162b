package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/joeblew999/plat-campus/internal/registry"
)

// Kind selects which typed property shape a feature carries.
type Kind string

const (
	KindBuilding  Kind = "building"
	KindTransport Kind = "transport"
	KindPOI       Kind = "poi"
	KindGeneric   Kind = "generic"
)

// Common holds the properties every campus feature may carry.
type Common struct {
	Name         string `mapstructure:"name" json:"name,omitempty"`
	Title        string `mapstructure:"title" json:"title,omitempty"`
	Address      string `mapstructure:"address" json:"address,omitempty"`
	Description  string `mapstructure:"description" json:"description,omitempty"`
	Type         string `mapstructure:"type" json:"type,omitempty"`
	Phone        string `mapstructure:"phone" json:"phone,omitempty"`
	Email        string `mapstructure:"email" json:"email,omitempty"`
	Website      string `mapstructure:"website" json:"website,omitempty"`
	WorkingHours string `mapstructure:"working_hours" json:"working_hours,omitempty"`
	ImagePath    string `mapstructure:"image_path" json:"image_path,omitempty"`
}

// Building properties, including dormitory occupancy.
type Building struct {
	BuildingNumber  string   `mapstructure:"building_number" json:"building_number,omitempty"`
	YearBuilt       int      `mapstructure:"year_built" json:"year_built,omitempty"`
	Floors          int      `mapstructure:"floors" json:"floors,omitempty"`
	Capacity        int      `mapstructure:"capacity" json:"capacity,omitempty"`
	Services        []string `mapstructure:"services" json:"services,omitempty"`
	Faculties       []string `mapstructure:"faculties" json:"faculties,omitempty"`
	Departments     []string `mapstructure:"departments" json:"departments,omitempty"`
	RoomNumbers     []string `mapstructure:"room_numbers" json:"room_numbers,omitempty"`
	HasCafeteria    bool     `mapstructure:"has_cafeteria" json:"has_cafeteria,omitempty"`
	HasLibrary      bool     `mapstructure:"has_library" json:"has_library,omitempty"`
	HasComputerLab  bool     `mapstructure:"has_computer_lab" json:"has_computer_lab,omitempty"`
	HasWifi         bool     `mapstructure:"has_wifi" json:"has_wifi,omitempty"`
	HasMedical      bool     `mapstructure:"has_medical" json:"has_medical,omitempty"`
	HasParking      bool     `mapstructure:"has_parking" json:"has_parking,omitempty"`
	TotalPlaces     int      `mapstructure:"total_places" json:"total_places,omitempty"`
	AvailablePlaces int      `mapstructure:"available_places" json:"available_places,omitempty"`
	CostPerMonth    float64  `mapstructure:"cost_per_month" json:"cost_per_month,omitempty"`
	SafetyLevel     string   `mapstructure:"safety_level" json:"safety_level,omitempty"`
}

// Transport stop or parking properties.
type Transport struct {
	Routes   []string `mapstructure:"routes" json:"routes,omitempty"`
	Schedule string   `mapstructure:"schedule" json:"schedule,omitempty"`
	Opened   *bool    `mapstructure:"opened" json:"opened,omitempty"`
}

// POI properties for offices, departments and rooms.
type POI struct {
	Head                  string   `mapstructure:"head" json:"head,omitempty"`
	HeadOfDepartment      string   `mapstructure:"head_of_department" json:"head_of_department,omitempty"`
	HeadPhoto             string   `mapstructure:"head_photo" json:"head_photo,omitempty"`
	Room                  string   `mapstructure:"room" json:"room,omitempty"`
	Rooms                 []string `mapstructure:"rooms" json:"rooms,omitempty"`
	Floor                 int      `mapstructure:"floor" json:"floor,omitempty"`
	HasAdministrations    bool     `mapstructure:"has_administrations" json:"has_administrations,omitempty"`
	AdministrationName    string   `mapstructure:"administration_name" json:"administration_name,omitempty"`
	AdministrationPhone   string   `mapstructure:"administration_phone" json:"administration_phone,omitempty"`
	AdministrationHours   string   `mapstructure:"administration_hours" json:"administration_hours,omitempty"`
	AdministrationWebsite string   `mapstructure:"administration_website" json:"administration_website,omitempty"`
	ReceptionHours        string   `mapstructure:"reception_hours" json:"reception_hours,omitempty"`
	EquipmentList         []string `mapstructure:"equipment_list" json:"equipment_list,omitempty"`
}

// Properties is a tagged union of the known property shapes. Exactly one of
// Building, Transport or POI is set unless Kind is generic. Keys that no
// shape recognises land in Extra.
type Properties struct {
	Kind      Kind
	Common    Common
	Building  *Building
	Transport *Transport
	POI       *POI
	Extra     map[string]any

	raw map[string]any
}

// KindFor maps a layer role to the property shape its features carry.
func KindFor(role registry.Role) Kind {
	switch role {
	case registry.RoleBuilding:
		return KindBuilding
	case registry.RoleTransport:
		return KindTransport
	case registry.RolePOI, registry.RoleFloor:
		return KindPOI
	default:
		return KindGeneric
	}
}

// DecodeProperties validates a raw GeoJSON property bag into the typed
// shape for kind. A value that cannot be coerced downgrades the feature to
// generic, keeping every key in Extra, and returns the decode error.
func DecodeProperties(kind Kind, raw map[string]any) (Properties, error) {
	p := Properties{Kind: kind, raw: cloneMap(raw)}
	used := map[string]bool{}

	if err := decodeInto(raw, &p.Common, used); err != nil {
		return genericProps(raw), err
	}

	var err error
	switch kind {
	case KindBuilding:
		p.Building = &Building{}
		err = decodeInto(raw, p.Building, used)
	case KindTransport:
		p.Transport = &Transport{}
		err = decodeInto(raw, p.Transport, used)
	case KindPOI:
		p.POI = &POI{}
		err = decodeInto(raw, p.POI, used)
	}
	if err != nil {
		return genericProps(raw), err
	}

	for k, v := range raw {
		if !used[k] {
			if p.Extra == nil {
				p.Extra = map[string]any{}
			}
			p.Extra[k] = v
		}
	}
	return p, nil
}

func genericProps(raw map[string]any) Properties {
	p := Properties{Kind: KindGeneric, raw: cloneMap(raw), Extra: cloneMap(raw)}
	_ = decodeInto(raw, &p.Common, map[string]bool{})
	return p
}

func decodeInto(raw map[string]any, out any, used map[string]bool) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return err
	}
	for _, k := range md.Keys {
		used[k] = true
	}
	return nil
}

// Map returns a copy of the original property bag.
func (p Properties) Map() map[string]any {
	return cloneMap(p.raw)
}

// Keys returns the property names in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p.raw))
	for k := range p.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text flattens one property to a string: lists are space-joined, numbers
// and booleans formatted, missing keys empty.
func (p Properties) Text(key string) string {
	v, ok := p.raw[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Stringify renders a GeoJSON property value as display text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := Stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(t, " ")
	default:
		return fmt.Sprint(t)
	}
}

// DisplayName is name, else title, else fallback.
func (p Properties) DisplayName(fallback string) string {
	if p.Common.Name != "" {
		return p.Common.Name
	}
	if p.Common.Title != "" {
		return p.Common.Title
	}
	return fallback
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
