package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/feedrank/internal/middleware"
)

// RouterConfig wires the handlers and middleware of the HTTP surface.
type RouterConfig struct {
	Feed   *FeedHandlers
	Items  *ItemHandlers
	Health *HealthHandlers

	Logger *slog.Logger

	// HTTPMetrics records request metrics; nil disables them.
	HTTPMetrics *middleware.Metrics

	// MetricsHandler serves GET /metrics; nil leaves the route unmounted.
	MetricsHandler http.Handler

	// TracingServiceName enables OpenTelemetry request spans when set.
	TracingServiceName string

	// RateLimitStore limits GET /feed per user; nil disables limiting.
	RateLimitStore  middleware.RateLimitStore
	RateLimitConfig middleware.RateLimitConfig
}

// NewRouter builds the service router:
//
//	GET    /feed
//	POST   /items/{id}/like
//	DELETE /items/{id}/like
//	POST   /items/{id}/view
//	GET    /health, /ready, /metrics
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TracingServiceName != "" {
		r.Use(middleware.Tracing(cfg.TracingServiceName))
	}
	r.Use(middleware.HTTPMetrics(cfg.HTTPMetrics))
	r.Use(middleware.Logging(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)

		feedRoute := r.With()
		if cfg.RateLimitStore != nil {
			feedRoute = r.With(middleware.RateLimiter(cfg.RateLimitStore, cfg.RateLimitConfig, middleware.UserKeyFunc(), cfg.HTTPMetrics))
		}
		feedRoute.Get("/feed", cfg.Feed.GetFeed)

		r.Route("/items/{id}", func(r chi.Router) {
			r.Post("/like", cfg.Items.Like)
			r.Delete("/like", cfg.Items.Unlike)
			r.Post("/view", cfg.Items.RecordView)
		})
	})

	return r
}
