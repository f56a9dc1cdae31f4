// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package main is the entry point for the Mapsync server.

Mapsync resolves free-text street addresses to coordinates through a cached,
rate-limited geocoder and keeps a map view synchronized with a subject
property and its comparables. Browsers mount a map session over the REST API
and follow its view over a WebSocket.

# Application Architecture

	RootSupervisor ("mapsync")
	├── APISupervisor ("api-layer")
	│   └── HTTP Server (REST + WebSocket)
	└── BackgroundSupervisor ("background-layer")
	    └── Session Reaper

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Cache tiers: BadgerDB durable tier and in-memory session tier
 4. Geocoder: Nominatim provider behind a gobreaker circuit breaker
 5. Session registry: one geocode queue and map controller per session
 6. Supervisor Tree: Suture v4 process supervision
 7. HTTP Server: Chi router with middleware stack

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	HTTP_PORT=3858               # HTTP server port
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	GEOCODER_URL=https://nominatim.openstreetmap.org
	GEOCODER_USER_AGENT="myapp/1.0 (+https://example.com)"
	GEOCODE_QUEUE_DELAY=1100ms   # spacing between provider calls
	GEOCODE_CACHE_TTL=720h       # cached coordinates expire after 30 days

	CACHE_PATH=/data/cache       # BadgerDB directory
	CACHE_IN_MEMORY=false        # keep the durable tier in RAM
	CACHE_GEOCODE_TIER=durable   # durable or session

	SESSION_MAX_IDLE=30m         # sessions idle longer are closed

# Signal Handling

The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server stops
accepting connections, every open map session is closed, and the cache
database is flushed and released.

# Port 3858

The default port sits next to 3857 (EPSG:3857, Web Mercator), the projection
used by web mapping libraries.
*/
package main
