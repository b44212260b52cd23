package metrics

import (
	"net/http"
	"strconv"
	"time"

	"ms-events/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EntityOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_operations_total",
			Help: "Entity load/save/delete operations by outcome",
		},
		[]string{"entity_type", "operation", "status"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_lookups_total",
			Help: "Entity cache lookups by result",
		},
		[]string{"entity_type", "result"},
	)

	DefinitionUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_definition_updates_total",
			Help: "Entity/field definition update runs by result",
		},
		[]string{"result"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

const unmatchedRoute = "unmatched"

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request latency and logs one line per request.
func Instrument(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			// Unrouted paths share one label so scans cannot grow the series set.
			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			elapsed := time.Since(start)
			requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
			log.LogAPI(r.Method, r.URL.Path, status, elapsed)
		})
	}
}
