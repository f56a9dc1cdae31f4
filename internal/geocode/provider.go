// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// Candidate is one match returned by a provider.
type Candidate struct {
	Point       geo.Point `json:"point"`
	DisplayName string    `json:"display_name,omitempty"`
}

// Provider is an outbound geocoding service.
type Provider interface {
	// Search returns the provider's candidates for a free-text query, best
	// first. An empty slice with a nil error means nothing matched.
	Search(ctx context.Context, query string) ([]Candidate, error)

	// Name returns the provider name for logging and metrics.
	Name() string
}

// ========================================
// Nominatim Provider
// ========================================

// NominatimProvider implements Provider against an OpenStreetMap Nominatim
// compatible /search endpoint. The public instance allows roughly one
// request per second, which is what the geocode queue paces to.
type NominatimProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	email     string
}

// NominatimConfig configures NewNominatimProvider.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Email     string
	Timeout   time.Duration
}

// nominatimResult is one element of the /search JSON array. Coordinates
// arrive as decimal strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewNominatimProvider creates a Nominatim provider.
func NewNominatimProvider(cfg NominatimConfig) *NominatimProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NominatimProvider{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		email:     cfg.Email,
	}
}

// Name returns the provider name.
func (p *NominatimProvider) Name() string {
	return "nominatim"
}

// Search performs one GET /search?format=json&limit=1&q=<query>.
func (p *NominatimProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	start := time.Now()
	defer func() { metrics.RecordProviderCall(p.Name(), time.Since(start)) }()

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", query)
	if p.email != "" {
		params.Set("email", p.email)
	}
	endpoint := p.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query Nominatim: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode Nominatim response: %w", err)
	}

	return convertNominatimResults(results)
}

func convertNominatimResults(results []nominatimResult) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		lat, err := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q: %w", r.Lat, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(r.Lon), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q: %w", r.Lon, err)
		}
		candidates = append(candidates, Candidate{
			Point:       geo.Point{Lat: lat, Lng: lng},
			DisplayName: r.DisplayName,
		})
	}
	return candidates, nil
}
