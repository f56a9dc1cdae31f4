// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geocode

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// RateLimitedProvider paces every search through one process-wide slot, so
// all sessions together stay under the provider's rate limit.
//
// Calls are serialized. A call starts no sooner than interval after the
// previous call returned, which also keeps starts at least interval apart.
type RateLimitedProvider struct {
	next     Provider
	limiter  *rate.Limiter
	interval time.Duration

	// slot holds one token while a caller waits or searches.
	slot chan struct{}

	// lastDone is guarded by slot.
	lastDone time.Time
}

// NewRateLimitedProvider wraps next. interval <= 0 disables pacing.
func NewRateLimitedProvider(next Provider, interval time.Duration) *RateLimitedProvider {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimitedProvider{
		next:     next,
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		slot:     make(chan struct{}, 1),
	}
}

// Name returns the wrapped provider's name.
func (p *RateLimitedProvider) Name() string {
	return p.next.Name()
}

// Search implements Provider. It returns ctx.Err() if ctx ends while
// waiting for a slot.
func (p *RateLimitedProvider) Search(ctx context.Context, query string) ([]Candidate, error) {
	waitStart := time.Now()
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slot }()

	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if waited := time.Since(waitStart); waited > p.interval {
		logging.Debug().Dur("waited", waited).Str("provider", p.next.Name()).Msg("Geocode call delayed by shared rate limit")
	}
	metrics.GeocodeRateLimitWait.Observe(time.Since(waitStart).Seconds())

	candidates, err := p.next.Search(ctx, query)
	p.lastDone = time.Now()
	return candidates, err
}

func (p *RateLimitedProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if p.lastDone.IsZero() {
		return nil
	}
	gap := p.interval - time.Since(p.lastDone)
	if gap <= 0 {
		return nil
	}
	t := time.NewTimer(gap)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
