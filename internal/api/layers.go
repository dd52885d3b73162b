package api

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/service"
)

// RegisterLayers registers layer, floor plan and source routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{name}", h.GetLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{name}/features", h.GetFeatures, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/{name}/reload", h.ReloadLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/floorplans", h.GetFloorPlans, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/load-report", h.GetLoadReport, huma.OperationTags("layers"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterTiles registers tile listing routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
}

type NameInput struct {
	Name string `path:"name" doc:"Layer name" example:"main_building"`
}

// LayerInfo is a registered layer with its load state.
type LayerInfo struct {
	registry.Layer
	Loaded       bool `json:"loaded" doc:"Whether features are in memory"`
	Features     int  `json:"features" doc:"Features held"`
	HasFloorPlan bool `json:"hasFloorPlan" doc:"Whether clicking a feature opens a floor plan"`
}

type LayersInput struct {
	Group string `query:"group" enum:"base,interactive,floor" doc:"Only layers of this group"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func (h *APIHandler) layerInfo(l registry.Layer, report map[string]features.LoadStatus) LayerInfo {
	st := report[l.Name]
	return LayerInfo{
		Layer:        l,
		Loaded:       st.Loaded,
		Features:     st.Features,
		HasFloorPlan: h.m.Registry.HasFloorPlan(l.Name),
	}
}

func (h *APIHandler) report() map[string]features.LoadStatus {
	out := make(map[string]features.LoadStatus)
	for _, st := range h.m.Store.Report() {
		out[st.Layer] = st
	}
	return out
}

func (h *APIHandler) GetLayers(ctx context.Context, input *LayersInput) (*struct{ Body []LayerInfo }, error) {
	report := h.report()
	layers := []LayerInfo{}
	for _, l := range h.m.Registry.Layers() {
		if input.Group != "" && string(l.Group) != input.Group {
			continue
		}
		layers = append(layers, h.layerInfo(l, report))
	}
	return &struct{ Body []LayerInfo }{Body: layers}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *NameInput) (*struct{ Body LayerInfo }, error) {
	l, ok := h.m.Registry.Layer(input.Name)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &struct{ Body LayerInfo }{Body: h.layerInfo(l, h.report())}, nil
}

// GetFeatures returns a layer as a WGS84 FeatureCollection. Floor layers
// that were never opened are loaded on demand.
func (h *APIHandler) GetFeatures(ctx context.Context, input *NameInput) (*GeoJSONOutput, error) {
	if !h.m.Registry.Has(input.Name) {
		return nil, huma.Error404NotFound("layer not found")
	}
	if err := h.m.Store.EnsureLoaded(ctx, input.Name); err != nil {
		return nil, huma.Error503ServiceUnavailable("layer source unavailable", err)
	}
	feats, err := h.m.Store.Features(input.Name)
	if err != nil {
		return nil, apiError(err)
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range feats {
		fc.Append(f.GeoJSON())
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding features", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) ReloadLayer(ctx context.Context, input *NameInput) (*struct{ Body LayerInfo }, error) {
	l, ok := h.m.Registry.Layer(input.Name)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	if err := h.m.Reload(ctx, input.Name); err != nil {
		return nil, huma.Error503ServiceUnavailable("reload failed", err)
	}
	return &struct{ Body LayerInfo }{Body: h.layerInfo(l, h.report())}, nil
}

func (h *APIHandler) GetFloorPlans(ctx context.Context, input *struct{}) (*struct{ Body []registry.FloorPlan }, error) {
	return &struct{ Body []registry.FloorPlan }{Body: nonNil(h.m.Registry.FloorPlans())}, nil
}

func (h *APIHandler) GetLoadReport(ctx context.Context, input *struct{}) (*struct{ Body []features.LoadStatus }, error) {
	return &struct{ Body []features.LoadStatus }{Body: nonNil(h.m.Store.Report())}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: nonNil(h.svc.Source.List())}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc.Tile == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tile.List()
	if err != nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: nonNil(tiles)}, nil
}
