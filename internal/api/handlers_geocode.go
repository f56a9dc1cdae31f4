// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/validation"
)

// Geocode resolves one address, cache first.
//
// Request body:
//
//	{"address": "123 Main St, Erie, PA 16501", "owner_id": "user-42"}
//
// Responds 404 NOT_RESOLVED when the provider has no match or is
// unavailable; the caller cannot tell the two apart.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.GeocodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	g := h.geocoder.ForOwner(req.OwnerID)
	point, ok := g.Resolve(r.Context(), req.Address)
	if !ok {
		respondError(w, http.StatusNotFound, CodeNotResolved, "Address could not be resolved", nil)
		return
	}

	respondSuccess(w, http.StatusOK, models.GeocodeResult{
		Address: req.Address,
		Key:     g.Key(req.Address),
		Point:   point,
	}, start)
}

// ClearOwnerCache evicts every cached result stored for one owner from
// every tier. Called on sign-out.
func (h *Handler) ClearOwnerCache(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ownerID := r.URL.Query().Get("owner_id")
	if verr := validation.ValidateVar("owner_id", ownerID, "required,max=128"); verr != nil {
		respondAPIError(w, http.StatusBadRequest, toModelError(verr))
		return
	}

	prefix := h.geocoder.OwnerPrefix(ownerID)
	result := models.CacheClearResult{
		OwnerID: ownerID,
		Removed: make(map[string]int, len(h.tiers)),
	}
	for _, c := range h.tiers {
		result.Removed[c.Tier()] = c.ClearByPrefix(prefix)
	}

	logging.Ctx(r.Context()).Info().
		Str("owner_id", sanitizeLogValue(ownerID)).
		Interface("removed", result.Removed).
		Msg("Owner cache cleared")

	respondSuccess(w, http.StatusOK, result, start)
}
