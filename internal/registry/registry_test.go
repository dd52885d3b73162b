package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	main, ok := r.Layer("main_building")
	require.True(t, ok)
	assert.Equal(t, RoleBuilding, main.Role)
	assert.Equal(t, GroupInteractive, main.Group)
	assert.True(t, main.Interactive)

	platforms, ok := r.Layer("metro_platforms")
	require.True(t, ok)
	assert.False(t, platforms.Interactive)

	water, ok := r.Layer("water")
	require.True(t, ok)
	assert.True(t, water.IsBase())
	assert.False(t, water.Interactive)

	floor, ok := r.Layer("korpus1_level1")
	require.True(t, ok)
	assert.Equal(t, RoleFloor, floor.Role)

	assert.Len(t, r.Group(GroupBase), 15)
	assert.Len(t, r.ToggleAllLayers(), 18)
	assert.Contains(t, r.InitialVisible(), "podlozka")
	assert.Contains(t, r.InitialVisible(), "bus_stops")
	assert.NotContains(t, r.InitialVisible(), "cafe")
}

func TestFloorPlanLookup(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	plan, ok := r.FloorPlanByLayer("university_buildings")
	require.True(t, ok)
	assert.Equal(t, "korpus1", plan.BuildingID)
	assert.Equal(t, 1, plan.InitialLevel())
	assert.True(t, plan.HasFloorLayer("korpus1_level2"))

	assert.False(t, r.HasFloorPlan("dormitory_buildings"))

	f, ok := plan.Floor(0)
	require.True(t, ok)
	assert.Equal(t, "korpus1_level0", f.LayerName)
}

func TestInitialLevelWithoutFirstFloor(t *testing.T) {
	p := FloorPlan{Floors: []Floor{{Level: 3}, {Level: -1}, {Level: 2}}}
	assert.Equal(t, -1, p.InitialLevel())
}

func TestInferRole(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		want     Role
	}{
		{"sport_buildings", CategoryUniversity, RoleBuilding},
		{"main_building", CategoryUniversity, RoleBuilding},
		{"bus_stops", CategoryTransport, RoleTransport},
		{"atm", CategoryPOI, RolePOI},
		{"forest", CategoryNature, RoleNatural},
		{"roads", CategoryInfrastructure, RoleInfrastructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferRole(tt.name, tt.category))
		})
	}
}

func TestExplicitRoleWins(t *testing.T) {
	r, err := Parse([]byte(`
layers:
  interactive:
    - {name: buildings_lookalike, category: poi, role: poi}
`))
	require.NoError(t, err)
	l, _ := r.Layer("buildings_lookalike")
	assert.Equal(t, RolePOI, l.Role)
}

func TestValidateRejectsUnknownReferences(t *testing.T) {
	tests := map[string]string{
		"default visible": `
layers:
  base: [{name: a}]
defaultVisible: [missing]
`,
		"floor not in floors group": `
layers:
  interactive: [{name: hall}, {name: hall_f1}]
floorPlans:
  - buildingId: hall
    buildingLayers: [hall]
    floors: [{level: 1, layerName: hall_f1}]
`,
		"duplicate layer": `
layers:
  base: [{name: a}]
  interactive: [{name: a}]
`,
		"base in toggle all": `
layers:
  base: [{name: a}]
toggleAll: [a]
`,
		"floor in toggle all": `
layers:
  base: [{name: a}]
  floors: [{name: f}]
toggleAll: [f]
`,
		"unknown filter layer": `
layers:
  base: [{name: a}]
search:
  filters: [{id: x, layers: [nope]}]
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
layers:
  base: [{name: ground, category: infrastructure}]
  interactive: [{name: cafe, category: poi}]
defaultVisible: [cafe]
`), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ground", "cafe"}, r.InitialVisible())
	assert.Equal(t, 2, r.Search.MinQueryLength)
	assert.Equal(t, "EPSG:4326", r.Map.DataProjection)

	_, ok := r.Search.Filter("all")
	assert.True(t, ok)
	assert.Equal(t, 1, r.Order("cafe"))
	assert.Equal(t, -1, r.Order("nope"))
}

func TestSearchFilterAllows(t *testing.T) {
	all := SearchFilter{ID: "all", Layers: []string{"*"}}
	poi := SearchFilter{ID: "poi", Layers: []string{"cafe", "atm"}}
	assert.True(t, all.Allows("anything"))
	assert.True(t, poi.Allows("atm"))
	assert.False(t, poi.Allows("bus_stops"))
}
