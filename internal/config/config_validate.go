// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/mapsync/internal/geo"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateGeocoder(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.validateMap(); err != nil {
		return err
	}

	if err := c.validateSessions(); err != nil {
		return err
	}

	if err := c.validateRateLimits(); err != nil {
		return err
	}

	return c.validateLogging()
}

// IsProduction returns true when running with ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// validateGeocoder validates the provider endpoint and breaker policy
func (c *Config) validateGeocoder() error {
	if err := validateHTTPURL(c.Geocoder.BaseURL, "GEOCODER_URL"); err != nil {
		return err
	}
	if err := c.validateUserAgent(); err != nil {
		return err
	}
	if c.Geocoder.Timeout <= 0 {
		return fmt.Errorf("GEOCODER_TIMEOUT must be positive")
	}
	if c.Geocoder.CacheTTL <= 0 {
		return fmt.Errorf("GEOCODE_CACHE_TTL must be positive")
	}
	if c.Geocoder.BreakerFailureRatio <= 0 || c.Geocoder.BreakerFailureRatio > 1 {
		return fmt.Errorf("GEOCODER_BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	if c.Geocoder.BreakerMinRequests == 0 {
		return fmt.Errorf("GEOCODER_BREAKER_MIN_REQUESTS must be at least 1")
	}
	return nil
}

// validateUserAgent requires an identifying User-Agent. Public Nominatim
// blocks generic or missing agents.
func (c *Config) validateUserAgent() error {
	ua := strings.TrimSpace(c.Geocoder.UserAgent)
	if ua == "" {
		return fmt.Errorf("GEOCODER_USER_AGENT is required")
	}
	if c.IsProduction() && containsPlaceholder(ua) {
		return fmt.Errorf("GEOCODER_USER_AGENT contains a placeholder value")
	}
	return nil
}

// minProductionQueueDelay is the provider's one-request-per-second policy.
const minProductionQueueDelay = time.Second

func (c *Config) validateQueue() error {
	if c.Queue.Delay < 0 {
		return fmt.Errorf("GEOCODE_QUEUE_DELAY must not be negative")
	}
	if c.IsProduction() && c.Queue.Delay < minProductionQueueDelay {
		return fmt.Errorf("GEOCODE_QUEUE_DELAY must be at least %v in production", minProductionQueueDelay)
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.InMemory && c.Cache.DurablePath == "" {
		return fmt.Errorf("CACHE_PATH is required unless CACHE_IN_MEMORY=true")
	}
	if c.Cache.SessionQuotaBytes < 0 {
		return fmt.Errorf("CACHE_SESSION_QUOTA_BYTES must not be negative")
	}
	if c.Cache.GeocodeTier != "durable" && c.Cache.GeocodeTier != "session" {
		return fmt.Errorf("CACHE_GEOCODE_TIER must be one of: durable, session")
	}
	if c.Cache.Namespace == "" || strings.Contains(c.Cache.Namespace, ":") {
		return fmt.Errorf("CACHE_NAMESPACE must be non-empty and must not contain ':'")
	}
	if c.Cache.Version < 1 {
		return fmt.Errorf("CACHE_VERSION must be at least 1")
	}
	return nil
}

// maxZoom is the deepest zoom level of standard web map tiles
const maxZoom = 22

func (c *Config) validateMap() error {
	zooms := []struct {
		name  string
		value int
	}{
		{"MAP_SINGLE_POINT_ZOOM", c.Map.SinglePointZoom},
		{"MAP_MAX_FIT_ZOOM", c.Map.MaxFitZoom},
		{"MAP_DEFAULT_ZOOM", c.Map.DefaultZoom},
	}
	for _, z := range zooms {
		if z.value < 0 || z.value > maxZoom {
			return fmt.Errorf("%s must be between 0 and %d", z.name, maxZoom)
		}
	}
	if c.Map.PaddingPx < 0 {
		return fmt.Errorf("MAP_PADDING_PX must not be negative")
	}
	if c.Map.ViewportWidth < 0 || c.Map.ViewportHeight < 0 {
		return fmt.Errorf("MAP_VIEWPORT_WIDTH and MAP_VIEWPORT_HEIGHT must not be negative")
	}
	if err := geo.ValidateCoordinates(c.Map.DefaultLat, c.Map.DefaultLng); err != nil {
		return fmt.Errorf("MAP_DEFAULT_LAT/MAP_DEFAULT_LNG: %w", err)
	}
	return nil
}

func (c *Config) validateSessions() error {
	if c.Sessions.MaxIdle <= 0 {
		return fmt.Errorf("SESSION_MAX_IDLE must be positive")
	}
	if c.Sessions.ReapInterval <= 0 {
		return fmt.Errorf("SESSION_REAP_INTERVAL must be positive")
	}
	return nil
}

// Rate limit constants
const (
	minRateLimitRequests = 1           // Minimum 1 request allowed
	maxRateLimitRequests = 100000      // Maximum 100K requests per window
	minRateLimitWindow   = time.Second // Minimum 1 second window
	maxRateLimitWindow   = time.Hour   // Maximum 1 hour window
)

// validateRateLimits validates rate limiting configuration bounds.
func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL checks that rawURL is an absolute http(s) URL with a host.
func validateHTTPURL(rawURL, fieldName string) error {
	if rawURL == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}
	return nil
}

// placeholderPatterns indicate the operator forgot to set a real value.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
