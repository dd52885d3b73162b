package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/registry"
)

// RegisterHealth registers health and service description routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/map", h.GetMap, huma.OperationTags("map"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir,omitempty" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether the DuckDB mirror is available"`
	Layers   int      `json:"layers" doc:"Registered layers"`
	Loaded   int      `json:"loaded" doc:"Layers with features in memory"`
	Indexed  int      `json:"indexed" doc:"Features in the search index"`
	Sessions int      `json:"sessions" doc:"Live map sessions"`
	Features []string `json:"features" doc:"Available features"`
}

// MapBody is everything a client needs to set up the map before the first
// session request.
type MapBody struct {
	View           registry.MapView         `json:"view" doc:"Initial view, projection and basemap"`
	Categories     []registry.CategoryGroup `json:"categories" doc:"Category panel sections"`
	InitialVisible []string                 `json:"initialVisible" doc:"Layers visible in a new session"`
	ToggleAll      []string                 `json:"toggleAll" doc:"Layers affected by show/hide all"`
	POILayers      []string                 `json:"poiLayers" doc:"Layers listed in a building's POI menu"`
	QuickSearches  []registry.QuickSearch   `json:"quickSearches" doc:"Canned queries"`
	Filters        []registry.SearchFilter  `json:"filters" doc:"Search facets"`
	VectorTiles    string                   `json:"vectorTiles" doc:"Vector tile URL template"`
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	status := "ok"
	loaded := 0
	for _, st := range h.m.Store.Report() {
		if st.Loaded {
			loaded++
		}
	}
	if loaded == 0 {
		status = "degraded"
	}
	return &struct{ Body HealthBody }{Body: HealthBody{Status: status, Version: h.svc.Version}}, nil
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:     "plat-campus",
		Version:  h.svc.Version,
		DataDir:  h.m.DataDir(),
		DB:       h.m.DB != nil,
		Layers:   len(h.m.Registry.Layers()),
		Sessions: h.m.Sessions.Len(),
		Features: []string{"sessions", "floor-plans", "search", "geolocation", "vector-tiles"},
	}
	for _, st := range h.m.Store.Report() {
		if st.Loaded {
			body.Loaded++
		}
	}
	if idx, release := h.m.Search(); idx != nil {
		body.Indexed = idx.Len()
		release()
	}
	if body.DB {
		body.Features = append(body.Features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *struct{}) (*struct{ Body MapBody }, error) {
	reg := h.m.Registry
	return &struct{ Body MapBody }{Body: MapBody{
		View:           reg.Map,
		Categories:     nonNil(reg.Categories),
		InitialVisible: nonNil(reg.InitialVisible()),
		ToggleAll:      nonNil(reg.ToggleAllLayers()),
		POILayers:      nonNil(reg.POILayers()),
		QuickSearches:  nonNil(reg.Search.QuickSearches),
		Filters:        nonNil(reg.Search.Filters),
		VectorTiles:    "/tiles/vector/{layer}/{z}/{x}/{y}.mvt",
	}}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
