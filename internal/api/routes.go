// Package api defines the Huma API routes and handlers.
package api

import (
	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/campus"
	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/service"
)

// Services holds the dependencies of the API handlers.
type Services struct {
	Map     *campus.Map
	Source  *service.SourceService
	Tile    *service.TileService
	Version string
	Log     *zap.Logger
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
	m   *campus.Map
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc, m: svc.Map}
}

func (h *APIHandler) log() *zap.Logger {
	if h.svc.Log == nil {
		return zap.NewNop()
	}
	return h.svc.Log
}

// Config returns the Huma configuration shared by the server and tests.
func Config(version string) huma.Config {
	cfg := huma.DefaultConfig("plat-campus API", version)
	cfg.Info.Description = "Campus map service: layers, map sessions, click resolution, floor plans and search."
	// Disable $schema property in responses (cleaner JSON)
	cfg.CreateHooks = []func(huma.Config) huma.Config{}
	cfg.Transformers = append(cfg.Transformers, humastar.LinkTransformer())
	return cfg
}

// RegisterRoutes registers every operation, then derives the hypermedia
// links from the resulting OpenAPI document.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	humastar.AutoLinks(api)
}

// Shared types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" enum:"ok,degraded" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}
