package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LayerLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_layer_loads_total",
		Help: "Layer source loads by result (ok, failed)",
	}, []string{"result"})
	FeaturesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_features_skipped_total",
		Help: "Features dropped during load because of missing or malformed geometry",
	})
	ClicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_clicks_total",
		Help: "Map clicks by resolution outcome",
	}, []string{"outcome"})
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_searches_total",
		Help: "Search queries by result (executed, gated)",
	}, []string{"result"})
	SearchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_search_duration_ms",
		Help:    "Search index query duration in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campus_sessions_active",
		Help: "Map sessions currently held in memory",
	})
	PanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_recovered_panics_total",
		Help: "Request handlers that panicked and were recovered",
	})
	TileFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_tile_fallbacks_total",
		Help: "Basemap tile requests redirected to the public tile server",
	})
)

func init() {
	prometheus.MustRegister(LayerLoadsTotal)
	prometheus.MustRegister(FeaturesSkippedTotal)
	prometheus.MustRegister(ClicksTotal)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(PanicsTotal)
	prometheus.MustRegister(TileFallbacksTotal)
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
