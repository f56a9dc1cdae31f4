// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package api provides the HTTP API for Mapsync.

The API lets a front-end resolve single addresses, mount map sessions for a
subject property and its comparables, feed renderer events back to the
viewport state machine and stream view updates over a WebSocket.

Endpoints:

	GET    /api/v1/health                      liveness and component status
	POST   /api/v1/geocode                     resolve one address
	POST   /api/v1/sessions                    mount a map session
	GET    /api/v1/sessions/{id}               current view
	PUT    /api/v1/sessions/{id}/comparables   replace comparable rows
	POST   /api/v1/sessions/{id}/events        renderer event
	DELETE /api/v1/sessions/{id}               unmount
	GET    /api/v1/sessions/{id}/ws            view stream
	DELETE /api/v1/cache?owner_id=             sign-out eviction
	GET    /metrics                            Prometheus metrics

Every JSON response uses the envelope in models.APIResponse:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "2026-01-15T10:30:00Z"}
	}

Errors carry a machine-readable code (VALIDATION_ERROR, NOT_FOUND,
NOT_RESOLVED, INVALID_REQUEST) and a human-readable message.

Middleware:

  - Request IDs (X-Request-ID, propagated into the logging context)
  - Real IP extraction and panic recovery
  - CORS via go-chi/cors
  - Per-IP rate limiting via go-chi/httprate
  - Prometheus request metrics labelled by route pattern
*/
package api
