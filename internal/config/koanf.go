// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/mapsync/internal/geocode"
	"github.com/tomtom215/mapsync/internal/geoqueue"
	"github.com/tomtom215/mapsync/internal/mapsync"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mapsync/config.yaml",
	"/etc/mapsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	breaker := geocode.DefaultBreakerConfig()
	view := mapsync.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Port:            3858,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Geocoder: GeocoderConfig{
			BaseURL:             "https://nominatim.openstreetmap.org",
			UserAgent:           "mapsync/1.0 (+https://github.com/tomtom215/mapsync)",
			Timeout:             10 * time.Second,
			LookupTimeout:       15 * time.Second,
			CacheTTL:            geocode.DefaultTTL,
			BreakerMaxRequests:  breaker.MaxRequests,
			BreakerInterval:     breaker.Interval,
			BreakerTimeout:      breaker.Timeout,
			BreakerMinRequests:  breaker.MinRequests,
			BreakerFailureRatio: breaker.FailureRatio,
		},
		Queue: QueueConfig{
			Delay: geoqueue.DefaultDelay,
		},
		Cache: CacheConfig{
			DurablePath:       "/data/cache",
			InMemory:          false,
			SessionQuotaBytes: 5 << 20, // 5MB, the usual per-origin browser quota
			GeocodeTier:       "durable",
			Namespace:         geocode.DefaultNamespace,
			Version:           geocode.DefaultVersion,
		},
		Map: MapConfig{
			SinglePointZoom: view.SinglePointZoom,
			MaxFitZoom:      view.MaxFitZoom,
			PaddingPx:       view.PaddingPx,
			DefaultLat:      view.DefaultCenter.Lat,
			DefaultLng:      view.DefaultCenter.Lng,
			DefaultZoom:     view.DefaultZoom,
		},
		Sessions: SessionsConfig{
			MaxIdle:      30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server mappings
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Geocoder mappings
	"geocoder_url":                   "geocoder.base_url",
	"geocoder_user_agent":            "geocoder.user_agent",
	"geocoder_email":                 "geocoder.email",
	"geocoder_timeout":               "geocoder.timeout",
	"geocoder_lookup_timeout":        "geocoder.lookup_timeout",
	"geocode_cache_ttl":              "geocoder.cache_ttl",
	"geocoder_breaker_max_requests":  "geocoder.breaker_max_requests",
	"geocoder_breaker_interval":      "geocoder.breaker_interval",
	"geocoder_breaker_timeout":       "geocoder.breaker_timeout",
	"geocoder_breaker_min_requests":  "geocoder.breaker_min_requests",
	"geocoder_breaker_failure_ratio": "geocoder.breaker_failure_ratio",

	// Queue mappings
	"geocode_queue_delay": "queue.delay",

	// Cache mappings
	"cache_path":                "cache.durable_path",
	"cache_in_memory":           "cache.in_memory",
	"cache_session_quota_bytes": "cache.session_quota_bytes",
	"cache_geocode_tier":        "cache.geocode_tier",
	"cache_namespace":           "cache.namespace",
	"cache_version":             "cache.version",

	// Map mappings
	"map_single_point_zoom": "map.single_point_zoom",
	"map_max_fit_zoom":      "map.max_fit_zoom",
	"map_padding_px":        "map.padding_px",
	"map_default_lat":       "map.default_lat",
	"map_default_lng":       "map.default_lng",
	"map_default_zoom":      "map.default_zoom",
	"map_viewport_width":    "map.viewport_width",
	"map_viewport_height":   "map.viewport_height",

	// Session mappings
	"session_max_idle":      "sessions.max_idle",
	"session_reap_interval": "sessions.reap_interval",

	// Security mappings
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - GEOCODE_QUEUE_DELAY -> queue.delay
//   - CACHE_PATH -> cache.durable_path
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables never
	// reach the config.
	return ""
}
