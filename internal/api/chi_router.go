// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodyBytes bounds JSON request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Config configures the router.
type Config struct {
	// Token is the bearer token required on /api/v1 routes except health.
	Token      string
	Middleware *ChiMiddlewareConfig
	// Timeout bounds handler execution. Zero disables it.
	Timeout      time.Duration
	MaxBodyBytes int64
	// Checks are run by /api/v1/health/ready, keyed by component name.
	Checks map[string]func(context.Context) error
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config, svc Service) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	mw := NewChiMiddleware(cfg.Middleware)
	h := NewHandler(svc, cfg.MaxBodyBytes, cfg.Checks)

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RouteMetrics())
	r.Use(mw.CORS())
	if cfg.Timeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.Timeout))
	}

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(RequireToken(cfg.Token))

		r.Post("/node/payload/inspect", h.InspectPayload)
		r.Post("/node/runtime/memory", h.IngestMemory)
		r.Get("/node/servers/{id}/score", h.SecurityScore)

		r.Get("/servers/{id}/quarantine", h.QuarantineStatus)
		r.Post("/servers/{id}/quarantine", h.Quarantine)

		r.Get("/reputation/indicators", h.LookupIndicator)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	return r
}
