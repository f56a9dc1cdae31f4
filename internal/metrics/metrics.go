// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package metrics exposes Prometheus instrumentation for the cache tiers,
// the geocoder, the geocode queue, map sessions and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_cache_hits_total",
			Help: "Total number of TTL cache hits",
		},
		[]string{"tier"}, // "session", "durable"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_cache_misses_total",
			Help: "Total number of TTL cache misses (absent, expired or unreadable)",
		},
		[]string{"tier"},
	)

	CacheExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_cache_expirations_total",
			Help: "Entries deleted lazily on read because their TTL elapsed",
		},
		[]string{"tier"},
	)

	CacheHeals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_cache_heals_total",
			Help: "Corrupt or legacy entries removed on read",
		},
		[]string{"tier", "shape"},
	)

	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_cache_write_failures_total",
			Help: "Cache writes swallowed because the storage tier rejected them",
		},
		[]string{"tier"},
	)

	// Geocoder Metrics
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_geocode_requests_total",
			Help: "Geocode resolutions by outcome",
		},
		[]string{"outcome"}, // "cache_hit", "resolved", "unresolved", "invalid", "cancelled"
	)

	GeocodeProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapsync_geocode_provider_duration_seconds",
			Help:    "Duration of outbound geocoding provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	GeocodeRateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mapsync_geocode_rate_limit_wait_seconds",
			Help:    "Time a provider call waited for the shared rate-limit slot",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 1.5, 2.5, 5, 10, 30},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mapsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Geocode Queue Metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapsync_geoqueue_depth",
			Help: "Jobs enqueued but not yet started across all queues",
		},
	)

	QueueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_geoqueue_jobs_total",
			Help: "Geocode queue jobs by terminal outcome",
		},
		[]string{"outcome"}, // "resolved", "failed", "skipped", "discarded"
	)

	QueueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mapsync_geoqueue_wait_seconds",
			Help:    "Time a job spent waiting for its rate-limit slot",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 1.5, 2.5, 5, 10, 30},
		},
	)

	// Map Session Metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mapsync_sessions_active",
			Help: "Map sessions currently mounted",
		},
	)

	ViewportFits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_viewport_fits_total",
			Help: "Viewport commands issued by the map synchronization state machine",
		},
		[]string{"kind"}, // "center", "bounds", "default", "forced"
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapsync_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapsync_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordProviderCall records the duration of one outbound geocoding call.
func RecordProviderCall(provider string, duration time.Duration) {
	GeocodeProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
