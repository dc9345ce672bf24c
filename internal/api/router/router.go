package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pratik-mahalle/changewatch/internal/api/handlers"
	"github.com/pratik-mahalle/changewatch/internal/api/middleware"
	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/metrics"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Health  *handlers.HealthHandler
	Monitor *handlers.MonitorHandler
	Alert   *handlers.AlertHandler
	Data    *handlers.DataHandler
}

// New builds the HTTP handler for the management API
func New(cfg *config.Config, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware. Logger must stay the innermost writer wrapper so
	// handlers can add log fields.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	// Public routes
	r.Get("/health", h.Health.Healthz)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Routes scoped to the caller's user ID
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser(cfg.Server.JWTSecret))
		r.Use(chimiddleware.AllowContentType("application/json"))

		r.Route("/monitors", func(r chi.Router) {
			r.Get("/", h.Monitor.List)
			r.Post("/", h.Monitor.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Monitor.Get)
				r.Put("/", h.Monitor.Update)
				r.Delete("/", h.Monitor.Delete)
				r.Post("/pause", h.Monitor.Pause)
				r.Post("/resume", h.Monitor.Resume)
				r.Post("/check", h.Monitor.Check)

				r.Get("/alerts", h.Alert.ListByMonitor)
				r.Get("/snapshots", h.Data.Snapshots)
				r.Get("/aggregations", h.Data.Aggregations)
			})
		})

		r.Route("/alerts/{id}", func(r chi.Router) {
			r.Get("/", h.Alert.Get)
			r.Post("/read", h.Alert.MarkRead)
			r.Post("/feedback", h.Alert.Feedback)
		})
	})

	return r
}
