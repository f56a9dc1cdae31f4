// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/models"
	"github.com/tomtom215/mapsync/internal/session"
	"github.com/tomtom215/mapsync/internal/validation"
	ws "github.com/tomtom215/mapsync/internal/websocket"
)

// CreateSession mounts a map session. The subject lookup and the
// comparable queue start immediately; the returned view shows whatever is
// already known (direct coordinates and cache hits).
//
// Request body:
//
//	{
//	  "owner_id": "user-42",
//	  "subject": {"address": "123 Main St", "city": "Erie", "state": "PA", "zip": "16501"},
//	  "comparables": [{"id": "c1", "address": "456 Oak Ave", "city": "Erie", "state": "PA"}]
//	}
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.CreateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	s, view := h.registry.Create(req.OwnerID, req.Subject, req.Comparables)
	logging.Ctx(r.Context()).Info().
		Str("session_id", s.ID()).
		Bool("subject", req.Subject != nil).
		Int("comparables", len(req.Comparables)).
		Msg("Map session mounted")

	respondSuccess(w, http.StatusCreated, view, start)
}

// GetSession returns the current view, including the pending viewport
// command the renderer should apply.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	respondSuccess(w, http.StatusOK, s.View(), start)
}

// UpdateComparables replaces the comparable rows after a re-render.
// Addresses already resolved or queued are not looked up again.
func (h *Handler) UpdateComparables(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req models.UpdateComparablesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	respondSuccess(w, http.StatusOK, s.UpdateComparables(req.Comparables), start)
}

// SessionEvent applies one renderer event: a user gesture, the start or
// end of a programmatic fit, or a render tick.
func (h *Handler) SessionEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req models.SessionEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	view, err := applyEvent(s, req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	respondSuccess(w, http.StatusOK, view, start)
}

// DeleteSession unmounts a session: pending lookups are cancelled and
// stream subscribers are disconnected.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := chi.URLParam(r, "id")
	if !validSessionID(w, id) {
		return
	}

	if err := h.registry.Delete(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, CodeNotFound, "Session not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to close session", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"closed": true,
	}, start)
}

// SessionStream upgrades to a WebSocket that receives every new view of
// the session and may send renderer events back.
func (h *Handler) SessionStream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logging.Warn().Err(err).Str("session_id", s.ID()).Msg("WebSocket upgrade failed")
		return
	}

	updates, unsubscribe := s.Subscribe()
	client := ws.NewClient(conn, updates, unsubscribe, func(eventType string) error {
		_, err := applyEvent(s, eventType)
		return err
	})
	client.Send(ws.Message{Type: ws.MessageTypeView, Data: s.View()})
	client.Start()

	logging.Debug().
		Str("session_id", s.ID()).
		Uint64("client_id", client.ID()).
		Msg("View stream connected")
}

// lookupSession resolves the {id} path parameter. On failure it writes the
// error response and returns false.
func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	if !validSessionID(w, id) {
		return nil, false
	}

	s, err := h.registry.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, CodeNotFound, "Session not found", nil)
		return nil, false
	}
	return s, true
}

func validSessionID(w http.ResponseWriter, id string) bool {
	verr := validation.ValidateVar("id", id, "required,uuid4")
	if verr == nil {
		return true
	}
	respondAPIError(w, http.StatusBadRequest, toModelError(verr))
	return false
}
