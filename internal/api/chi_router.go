// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mapsync/internal/middleware"
)

// Router wires handlers to routes and middleware.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for handler. Security settings come from the
// handler's configuration.
func NewRouter(handler *Handler) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddlewareFromConfig(handler.config.Security),
	}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)        // X-Request-ID header and logging context
	r.Use(chimiddleware.RealIP)        // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)     // Recover from panics
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
	})

	// ========================
	// Core API Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.With(router.chiMiddleware.RateLimitGeocode()).Post("/geocode", router.handler.Geocode)

		r.Route("/sessions", func(r chi.Router) {
			r.With(router.chiMiddleware.RateLimit()).Post("/", router.handler.CreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(router.chiMiddleware.RateLimit())
					r.Get("/", router.handler.GetSession)
					r.Put("/comparables", router.handler.UpdateComparables)
					r.Delete("/", router.handler.DeleteSession)
				})
				r.With(router.chiMiddleware.RateLimitEvents()).Post("/events", router.handler.SessionEvent)
				r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws", router.handler.SessionStream)
			})
		})

		r.With(router.chiMiddleware.RateLimit()).Delete("/cache", router.handler.ClearOwnerCache)
	})

	// ========================
	// Prometheus Metrics
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
