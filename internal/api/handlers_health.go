// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/mapsync/internal/cache"
	"github.com/tomtom215/mapsync/internal/models"
)

// Health handles health check requests.
//
// The service is "healthy" while the provider breaker is closed and
// "degraded" while it is open or probing; lookups then answer from cache
// only.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := "healthy"
	breakerState := ""
	if h.breaker != nil {
		breakerState = h.breaker.State()
		if breakerState != "closed" {
			status = "degraded"
		}
	}

	sessions := 0
	if h.registry != nil {
		sessions = h.registry.Len()
	}

	caches := make(map[string]cache.Stats, len(h.tiers))
	for _, c := range h.tiers {
		caches[c.Tier()] = c.Stats()
	}

	respondSuccess(w, http.StatusOK, models.HealthStatus{
		Status:   status,
		Version:  Version,
		Uptime:   time.Since(h.startTime).Seconds(),
		Sessions: sessions,
		Breaker:  breakerState,
		Caches:   caches,
	}, start)
}
