// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/mapsync/internal/cache"
	"github.com/tomtom215/mapsync/internal/config"
	"github.com/tomtom215/mapsync/internal/geocode"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/mapsync"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/session"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// BreakerStatus reports the provider circuit breaker state.
type BreakerStatus interface {
	State() string
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across multiple files:
//   - handlers.go: Handler struct, constructor, shared session helpers (this file)
//   - handlers_helpers.go: response and request helpers
//   - handlers_health.go: health endpoint
//   - handlers_geocode.go: single-address lookup and sign-out eviction
//   - handlers_sessions.go: map session endpoints and the view stream
type Handler struct {
	config    *config.Config
	geocoder  *geocode.Geocoder
	registry  *session.Registry
	tiers     []*cache.Cache
	breaker   BreakerStatus
	startTime time.Time
}

// NewHandler creates a new API handler.
//
// Dependencies:
//   - cfg: Application configuration
//   - geocoder: Shared geocoder; per-owner views are derived with ForOwner
//   - registry: Mounted map sessions
//   - tiers: Every cache tier holding geocode results, cleared on sign-out
//
// Example:
//
//	handler := api.NewHandler(cfg, geocoder, registry, durable, sessionTier)
//	router := api.NewRouter(handler)
//	http.ListenAndServe(":3858", router.SetupChi())
func NewHandler(cfg *config.Config, geocoder *geocode.Geocoder, registry *session.Registry, tiers ...*cache.Cache) *Handler {
	return &Handler{
		config:    cfg,
		geocoder:  geocoder,
		registry:  registry,
		tiers:     tiers,
		startTime: time.Now(),
	}
}

// SetBreaker sets the circuit breaker reported by the health endpoint.
// Safe to call once during startup.
func (h *Handler) SetBreaker(b BreakerStatus) {
	h.breaker = b
}

// applyEvent routes one renderer event to the session. HTTP events and
// WebSocket events share it.
func applyEvent(s *session.Session, eventType string) (session.View, error) {
	switch eventType {
	case models.EventFitStart:
		return s.FitStarted(), nil
	case models.EventFitEnd:
		return s.FitCompleted(), nil
	case models.EventTick:
		return s.Tick(), nil
	}
	if kind, ok := mapsync.ParseInteraction(eventType); ok {
		return s.Interact(kind), nil
	}
	return session.View{}, fmt.Errorf("unknown event type %q", eventType)
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin on WebSocket handshakes
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Security.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
