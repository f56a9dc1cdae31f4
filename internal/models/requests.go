// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package models

import (
	"github.com/tomtom215/mapsync/internal/cache"
	"github.com/tomtom215/mapsync/internal/geo"
)

// MaxComparables bounds the rows accepted in one request.
const MaxComparables = 500

// GeocodeRequest is the body of POST /api/v1/geocode.
type GeocodeRequest struct {
	Address string `json:"address" validate:"required,max=500,address"`
	OwnerID string `json:"owner_id,omitempty" validate:"omitempty,max=128"`
}

// GeocodeResult is returned for a resolved address.
type GeocodeResult struct {
	Address string    `json:"address"`
	Key     string    `json:"key"`
	Point   geo.Point `json:"point"`
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	OwnerID     string    `json:"owner_id,omitempty" validate:"omitempty,max=128"`
	Subject     *geo.Row  `json:"subject,omitempty" validate:"omitempty"`
	Comparables []geo.Row `json:"comparables" validate:"max=500,dive"`
}

// UpdateComparablesRequest is the body of PUT /api/v1/sessions/{id}/comparables.
type UpdateComparablesRequest struct {
	Comparables []geo.Row `json:"comparables" validate:"max=500,dive"`
}

// Session event types accepted by POST /api/v1/sessions/{id}/events.
const (
	EventFitStart = "fitstart"
	EventFitEnd   = "fitend"
	EventTick     = "tick"
)

// SessionEventRequest is one renderer event.
type SessionEventRequest struct {
	Type string `json:"type" validate:"required,oneof=pointerdown touchstart dragstart zoomstart fitstart fitend tick"`
}

// CacheClearResult reports a sign-out eviction.
type CacheClearResult struct {
	OwnerID string         `json:"owner_id"`
	Removed map[string]int `json:"removed"`
}

// HealthStatus is returned by GET /api/v1/health.
type HealthStatus struct {
	Status   string  `json:"status"`
	Version  string  `json:"version"`
	Uptime   float64 `json:"uptime_seconds"`
	Sessions int     `json:"sessions"`
	Breaker  string  `json:"breaker,omitempty"`

	// Caches holds hit and miss counters per tier ("durable", "session").
	Caches map[string]cache.Stats `json:"caches,omitempty"`
}
