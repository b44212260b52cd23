package server

import (
	"context"
	"net/http"
	"time"

	"ms-events/internal/auth"
	"ms-events/internal/devel/devel_api"
	"ms-events/internal/events/event_api"
	"ms-events/internal/logger"
	"ms-events/internal/metrics"
	"ms-events/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Events   *event_api.Handler
	Devel    *devel_api.Handler
	DB       Pinger
	Verifier auth.TokenVerifier // nil leaves the admin routes open
	Logger   *logger.Logger
}

// NewRouter wires the public and admin routes.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument(log))

	// --- Public Routes ---
	r.Get("/health", healthHandler(d.DB, log))
	r.Handle("/metrics", metrics.Handler())
	log.Info("ROUTER", "Health and metrics endpoints registered at /health and /metrics")

	// --- Admin Routes ---
	r.Group(func(r chi.Router) {
		if d.Verifier != nil {
			r.Use(auth.Middleware(d.Verifier, log))
			log.Info("AUTH", "OIDC middleware applied to admin routes")
		} else {
			log.Warn("AUTH", "No OIDC issuer configured, admin routes are unauthenticated")
		}

		d.Devel.RegisterRoutes(r)
		log.Info("ROUTER", "Developer pages registered at /test and /update-entity-field-definitions")

		r.Route("/api", d.Events.RegisterRoutes)
		log.Info("ROUTER", "Event routes registered under /api/events")
	})

	return r
}

func healthHandler(db Pinger, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := utils.SuccessResponse("ok", map[string]string{"database": "up"})
		if err := db.PingContext(ctx); err != nil {
			log.Error("HEALTH", "Database ping failed: "+err.Error())
			status = http.StatusServiceUnavailable
			body = utils.ErrorResponse("unavailable", err.Error())
		}
		if err := utils.WriteJSON(w, status, body); err != nil {
			log.Error("HEALTH", "Failed to write health response: "+err.Error())
		}
	}
}
