// Package testutil provides a small in-memory campus for package tests.
// Coordinates are EPSG:3857 metres so tests can reason about containment
// with plain numbers.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/registry"
)

// RegistryYAML describes the fixture campus.
//
//	ground            base, covers (0,0)-(1000,1000)
//	main_building     building (100,100)-(300,300), opens floor plan "hall"
//	dormitory_buildings building (500,100)-(700,300), no floor plan
//	cafe              POI points at (600,200) inside dorm and (800,800) outside
//	atm               POI point (650,250) inside dorm, hidden by default
//	bus_stops         transport point (400,400)
//	metro_platforms   non-interactive polygon (380,380)-(450,450), below bus_stops
//	hall_f0..f2       floor rooms (150,150)-(200,200)
const RegistryYAML = `
map:
  center: [500, 500]
  zoom: 16
  extent: [0, 0, 1000, 1000]
  dataProjection: EPSG:3857
  hitTolerance: 5
  clearDelayMs: 20
  tiles:
    url: tiles/base/{z}/{x}/{y}.png
    fallbackUrl: https://tile.example.org/{z}/{x}/{y}.png
layers:
  base:
    - {name: ground, url: data/ground.geojson, category: infrastructure, role: infrastructure, zIndex: -20}
  interactive:
    - {name: main_building, title: Main building, url: data/main.geojson, category: university, role: building, zIndex: 110}
    - {name: dormitory_buildings, title: Dormitories, url: data/dorm.geojson, category: university, role: building, zIndex: 105}
    - {name: metro_platforms, title: Platforms, url: data/platforms.geojson, category: transport, role: transport, interactive: false, zIndex: 199}
    - {name: bus_stops, title: Bus stops, url: data/bus.geojson, category: transport, role: transport, zIndex: 200}
    - {name: cafe, title: Cafes, url: data/cafe.geojson, category: poi, role: poi, zIndex: 1000}
    - {name: atm, title: ATMs, url: data/atm.geojson, category: poi, role: poi, zIndex: 1000}
  floors:
    - {name: hall_f0, url: data/hall_f0.geojson, category: university, zIndex: 120}
    - {name: hall_f1, url: data/hall_f1.geojson, category: university, zIndex: 121}
    - {name: hall_f2, url: data/hall_f2.geojson, category: university, zIndex: 122}
defaultVisible: [main_building, dormitory_buildings, metro_platforms, bus_stops, cafe]
toggleAll: [main_building, dormitory_buildings, bus_stops, cafe, atm]
poiLayers: [cafe, atm, bus_stops]
restoreOnClose: [main_building, dormitory_buildings]
floorPlans:
  - buildingId: hall
    buildingName: Main hall
    buildingLayers: [main_building]
    floors:
      - {level: 0, name: Basement, layerName: hall_f0}
      - {level: 1, name: First, layerName: hall_f1}
      - {level: 2, name: Second, layerName: hall_f2}
search:
  minQueryLength: 2
  maxResults: 50
  maxHistory: 3
  maxSuggestions: 5
  fuzziness: 1
  fields:
    - {field: name, weight: 100}
    - {field: title, weight: 90}
    - {field: address, weight: 70}
    - {field: description, weight: 40}
  filters:
    - {id: all, label: All, layers: ["*"]}
    - {id: university, label: University, layers: [main_building, dormitory_buildings]}
    - {id: poi, label: POI, layers: [cafe, atm]}
    - {id: transport, label: Transport, layers: [bus_stops, metro_platforms]}
  popularQueries: [coffee, dormitory]
  synonyms:
    coffee: [espresso]
  stopWords: [the]
sections:
  basic: {title: Basic, priority: 1}
  contact: {title: Contact, priority: 2}
fields:
  name: {label: Name, priority: 1}
  address: {label: Address, priority: 2, section: basic}
  phone: {label: Phone, priority: 4, section: contact}
`

// Documents are the fixture GeoJSON sources keyed by URL.
var Documents = map[string]string{
	"data/ground.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"ground","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1000,0],[1000,1000],[0,1000],[0,0]]]}}]}`,
	"data/main.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"main","properties":{"name":"Main Building","address":"Leninskie Gory 1","description":"Rectorate and faculties","floors":"3","faculties":["Mechanics","Physics"]},"geometry":{"type":"Polygon","coordinates":[[[100,100],[300,100],[300,300],[100,300],[100,100]]]}}]}`,
	"data/dorm.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"dorm","properties":{"name":"Student Dormitory","address":"Lomonosovsky 27","total_places":900,"phone":"+7 495 000","osm_id":42},"geometry":{"type":"Polygon","coordinates":[[[500,100],[700,100],[700,300],[500,300],[500,100]]]}}]}`,
	"data/platforms.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"platform","properties":{"name":"Platform"},"geometry":{"type":"Polygon","coordinates":[[[380,380],[450,380],[450,450],[380,450],[380,380]]]}}]}`,
	"data/bus.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"stop","properties":{"name":"Bus Stop University","routes":["1","119"]},"geometry":{"type":"Point","coordinates":[400,400]}}]}`,
	"data/cafe.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"cafe-in","properties":{"name":"Coffee Point"},"geometry":{"type":"Point","coordinates":[600,200]}},
		{"type":"Feature","id":"cafe-out","properties":{"name":"Garden Cafe","description":"Espresso and pastries"},"geometry":{"type":"Point","coordinates":[800,800]}}]}`,
	"data/atm.geojson": `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"title":"Campus ATM"},"geometry":{"type":"Point","coordinates":[650,250]}}]}`,
	"data/hall_f0.geojson": floorDoc("Archive"),
	"data/hall_f1.geojson": floorDoc("Lobby"),
	"data/hall_f2.geojson": floorDoc("Assembly hall"),
}

func floorDoc(room string) string {
	return `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"` + room + `","room":"101"},"geometry":{"type":"Polygon","coordinates":[[[150,150],[200,150],[200,200],[150,200],[150,150]]]}}]}`
}

// Registry parses the fixture registry.
func Registry(t testing.TB) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(RegistryYAML))
	require.NoError(t, err)
	return reg
}

// Fetcher returns a counting in-memory fetcher over Documents.
func Fetcher() *features.MapFetcher {
	docs := make(map[string][]byte, len(Documents))
	for k, v := range Documents {
		docs[k] = []byte(v)
	}
	return features.NewMapFetcher(docs)
}

// Store loads every base and interactive layer of the fixture campus.
// Floor layers are left for lazy loading.
func Store(t testing.TB, reg *registry.Registry, f features.Fetcher) *features.Store {
	t.Helper()
	store, err := features.NewStore(reg, f, zap.NewNop())
	require.NoError(t, err)
	for _, l := range reg.Layers() {
		if l.Group == registry.GroupFloor {
			continue
		}
		_, err := store.Load(context.Background(), l.Name)
		require.NoError(t, err)
	}
	return store
}
