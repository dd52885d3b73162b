package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/api"
	"github.com/joeblew999/plat-campus/internal/campus"
	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/metrics"
	"github.com/joeblew999/plat-campus/internal/prefs"
	"github.com/joeblew999/plat-campus/internal/service"
	"github.com/joeblew999/plat-campus/internal/tiler"
)

// Version is reported by /health and the OpenAPI document.
const Version = "1.0.0"

// ClientHeader identifies the client whose diagnostics log records a
// recovered failure.
const ClientHeader = "X-Client-ID"

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// Remote is set when sources come from an HTTP base URL rather than DataDir.
	Remote bool
	Log    *zap.Logger
}

// Server is the campus map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	m        *campus.Map
	services *api.Services
	log      *zap.Logger
	handler  http.Handler
}

// New creates a server over a started campus map.
func New(cfg Config, m *campus.Map) *Server {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	mux := http.NewServeMux()

	humaConfig := api.Config(Version)
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		m:       m,
		log:     cfg.Log,
		services: &api.Services{
			Map:     m,
			Source:  service.NewSourceService(cfg.DataDir, cfg.Remote, m.Registry),
			Tile:    service.NewTileService(cfg.DataDir, m.Registry.Map.Tiles, cfg.Log.Named("tiles")),
			Version: Version,
			Log:     cfg.Log.Named("api"),
		},
	}
	s.routes()
	s.handler = s.recoverer(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the OpenAPI document of the registered operations.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Run serves until ctx is cancelled, evicting idle sessions meanwhile.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.m.Sessions.Run(ctx, time.Minute)
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.Handle("/tiles/base/", http.StripPrefix("/tiles/base", s.services.Tile))
	s.mux.HandleFunc("GET /tiles/vector/{layer}/{z}/{x}/{file}", s.handleVectorTile)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range humastar.RootLinks() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-campus",
		"status":  "running",
	})
}

// handleVectorTile serves /tiles/vector/{layer}/{z}/{x}/{y}.mvt.
func (s *Server) handleVectorTile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	layer := r.PathValue("layer")
	if !s.m.Registry.Has(layer) {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	z, errZ := strconv.ParseUint(r.PathValue("z"), 10, 32)
	x, errX := strconv.ParseUint(r.PathValue("x"), 10, 32)
	file := r.PathValue("file")
	if len(file) < 5 || file[len(file)-4:] != ".mvt" {
		http.NotFound(w, r)
		return
	}
	y, errY := strconv.ParseUint(file[:len(file)-4], 10, 32)
	if errZ != nil || errX != nil || errY != nil || z > tiler.MaxZoom {
		http.Error(w, "invalid tile", http.StatusBadRequest)
		return
	}

	if err := s.m.Store.EnsureLoaded(r.Context(), layer); err != nil {
		http.Error(w, "layer source unavailable", http.StatusServiceUnavailable)
		return
	}
	data, err := s.m.Tiles.Tile(layer, maptile.New(uint32(x), uint32(y), maptile.Zoom(z)))
	switch {
	case errors.Is(err, tiler.ErrBadTile):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, features.ErrNotLoaded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		s.log.Error("vector tile failed", zap.String("layer", layer), zap.Error(err))
		http.Error(w, "tile encoding failed", http.StatusInternalServerError)
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Content-Encoding", "gzip")
	w.Write(data)
}

// recoveryBody is the answer to a request whose handler panicked.
type recoveryBody struct {
	Error    string   `json:"error"`
	Recovery []string `json:"recovery"`
}

// recoverer contains panics to the request: the failure is logged, counted
// and appended to the client's diagnostics log, and the client is offered
// to retry or reload.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			stack := string(debug.Stack())
			msg := fmt.Sprint(rec)
			metrics.PanicsTotal.Inc()
			s.log.Error("handler panic recovered",
				zap.String("path", r.URL.Path),
				zap.String("panic", msg),
				zap.String("stack", stack))

			err := prefs.RecordDiagnostic(context.WithoutCancel(r.Context()), s.m.Prefs, r.Header.Get(ClientHeader), prefs.Diagnostic{
				Message:   msg,
				Stack:     stack,
				Path:      r.URL.Path,
				UserAgent: r.UserAgent(),
			})
			if err != nil {
				s.log.Warn("recording diagnostic", zap.Error(err))
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(recoveryBody{
				Error:    "Что-то пошло не так",
				Recovery: []string{"retry", "reload"},
			})
		}()
		next.ServeHTTP(w, r)
	})
}
