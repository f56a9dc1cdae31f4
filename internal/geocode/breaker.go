// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geocode

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval after which closed-state counts reset.
	Interval time.Duration

	// Timeout spent open before probing again.
	Timeout time.Duration

	// MinRequests before the failure ratio is considered.
	MinRequests uint32

	// FailureRatio at or above which the breaker opens.
	FailureRatio float64
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker so that a dead or
// throttling geocoding service is not hammered by every queued row.
// A rejected call is an ordinary transient failure to the caller.
type BreakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[[]Candidate]
	name string
}

// NewBreakerProvider wraps next.
func NewBreakerProvider(next Provider, cfg BreakerConfig) *BreakerProvider {
	name := next.Name() + "-geocoder"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]Candidate](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= cfg.FailureRatio
			if shouldTrip {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		// A caller going away says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerProvider{next: next, cb: cb, name: name}
}

// Name returns the wrapped provider's name.
func (b *BreakerProvider) Name() string {
	return b.next.Name()
}

// State returns the breaker state as "closed", "half-open" or "open".
func (b *BreakerProvider) State() string {
	return stateToString(b.cb.State())
}

// Search implements Provider with circuit breaker protection.
func (b *BreakerProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	candidates, err := b.cb.Execute(func() ([]Candidate, error) {
		return b.next.Search(ctx, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logging.Debug().Err(err).Str("breaker", b.name).Msg("[CIRCUIT BREAKER] Request rejected")
	}
	return candidates, err
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
