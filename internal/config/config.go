// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"time"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/geocode"
	"github.com/tomtom215/mapsync/internal/mapsync"
	"github.com/tomtom215/mapsync/internal/session"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Geocoder GeocoderConfig `koanf:"geocoder"`
	Queue    QueueConfig    `koanf:"queue"`
	Cache    CacheConfig    `koanf:"cache"`
	Map      MapConfig      `koanf:"map"`
	Sessions SessionsConfig `koanf:"sessions"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // "development", "staging", "production"
}

// GeocoderConfig holds the geocoding provider and its circuit breaker.
type GeocoderConfig struct {
	BaseURL   string        `koanf:"base_url"`
	UserAgent string        `koanf:"user_agent"`
	Email     string        `koanf:"email"`
	Timeout   time.Duration `koanf:"timeout"`

	// LookupTimeout bounds a shared lookup after every caller has gone.
	LookupTimeout time.Duration `koanf:"lookup_timeout"`

	// CacheTTL is how long a resolved point is served from cache.
	// Default: 720h (30 days)
	CacheTTL time.Duration `koanf:"cache_ttl"`

	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
}

// QueueConfig holds comparable geocoding queue settings.
type QueueConfig struct {
	// Delay is the minimum spacing between provider calls.
	// Default: 1.1s (provider usage policy allows one request per second)
	Delay time.Duration `koanf:"delay"`
}

// CacheConfig holds the two cache tiers.
type CacheConfig struct {
	// DurablePath is the badger directory for the durable tier.
	DurablePath string `koanf:"durable_path"`

	// InMemory runs the durable tier without touching disk.
	InMemory bool `koanf:"in_memory"`

	// SessionQuotaBytes caps the session tier. 0 means unlimited.
	SessionQuotaBytes int64 `koanf:"session_quota_bytes"`

	// GeocodeTier selects which tier backs the geocoder: durable or session.
	// Sign-out eviction always clears both.
	// Default: durable
	GeocodeTier string `koanf:"geocode_tier"`

	Namespace string `koanf:"namespace"`
	Version   int    `koanf:"version"`
}

// MapConfig holds viewport policy.
type MapConfig struct {
	SinglePointZoom int     `koanf:"single_point_zoom"`
	MaxFitZoom      int     `koanf:"max_fit_zoom"`
	PaddingPx       int     `koanf:"padding_px"`
	DefaultLat      float64 `koanf:"default_lat"`
	DefaultLng      float64 `koanf:"default_lng"`
	DefaultZoom     int     `koanf:"default_zoom"`
	ViewportWidth   int     `koanf:"viewport_width"`
	ViewportHeight  int     `koanf:"viewport_height"`
}

// SessionsConfig holds map session lifetime settings.
type SessionsConfig struct {
	MaxIdle      time.Duration `koanf:"max_idle"`
	ReapInterval time.Duration `koanf:"reap_interval"`
}

// SecurityConfig holds CORS and rate limiting settings
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// Load is an alias for LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// NominatimConfig returns the provider settings.
func (c *Config) NominatimConfig() geocode.NominatimConfig {
	return geocode.NominatimConfig{
		BaseURL:   c.Geocoder.BaseURL,
		UserAgent: c.Geocoder.UserAgent,
		Email:     c.Geocoder.Email,
		Timeout:   c.Geocoder.Timeout,
	}
}

// BreakerConfig returns the provider circuit breaker settings.
func (c *Config) BreakerConfig() geocode.BreakerConfig {
	return geocode.BreakerConfig{
		MaxRequests:  c.Geocoder.BreakerMaxRequests,
		Interval:     c.Geocoder.BreakerInterval,
		Timeout:      c.Geocoder.BreakerTimeout,
		MinRequests:  c.Geocoder.BreakerMinRequests,
		FailureRatio: c.Geocoder.BreakerFailureRatio,
	}
}

// GeocoderOptions returns the geocoder cache policy.
func (c *Config) GeocoderOptions() geocode.Options {
	return geocode.Options{
		TTL:           c.Geocoder.CacheTTL,
		Namespace:     c.Cache.Namespace,
		Version:       c.Cache.Version,
		LookupTimeout: c.Geocoder.LookupTimeout,
	}
}

// SessionConfig returns the settings every new map session uses.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		QueueDelay: c.Queue.Delay,
		Map: mapsync.Config{
			SinglePointZoom: c.Map.SinglePointZoom,
			MaxFitZoom:      c.Map.MaxFitZoom,
			PaddingPx:       c.Map.PaddingPx,
			DefaultCenter:   geo.Point{Lat: c.Map.DefaultLat, Lng: c.Map.DefaultLng},
			DefaultZoom:     c.Map.DefaultZoom,
			ViewportWidth:   c.Map.ViewportWidth,
			ViewportHeight:  c.Map.ViewportHeight,
		},
	}
}
