// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package geocode turns free-text addresses into validated coordinates,
// consulting the TTL cache before any outbound provider call.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/mapsync/internal/cache"
	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// ErrNoCandidates is returned when the provider matched nothing.
var ErrNoCandidates = errors.New("no geocoding candidates")

// Defaults for Options.
const (
	DefaultTTL       = 30 * 24 * time.Hour
	DefaultNamespace = "geocode"
	DefaultVersion   = 1
)

// Options configures a Geocoder.
type Options struct {
	// TTL stored with every resolved point.
	TTL time.Duration

	// Namespace and Version prefix every cache key; bump Version when the
	// stored point format changes.
	Namespace string
	Version   int

	// LookupTimeout bounds one shared lookup, including the wait for a
	// provider slot.
	LookupTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Version <= 0 {
		o.Version = DefaultVersion
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 15 * time.Second
	}
	return o
}

// Geocoder resolves addresses cache-first. It never returns an error:
// every failure collapses to "unresolved" and is logged.
type Geocoder struct {
	provider Provider
	cache    *cache.Cache
	opts     Options
	owner    string
	flights  *flights
}

// flights tracks the callers waiting on each shared lookup. The lookup's
// context is cancelled when its last waiter leaves.
type flights struct {
	group singleflight.Group

	mu    sync.Mutex
	seq   uint64
	calls map[string]*flight
}

type flight struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// join registers a waiter for key, starting a new flight if none is live.
func (f *flights) join(key string, timeout time.Duration) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fl, ok := f.calls[key]; ok && fl.ctx.Err() == nil {
		fl.waiters++
		return fl
	}
	f.seq++
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	fl := &flight{
		// A fresh singleflight key per flight, so nobody joins a call that
		// was already cancelled.
		id:      key + "#" + strconv.FormatUint(f.seq, 10),
		ctx:     ctx,
		cancel:  cancel,
		waiters: 1,
	}
	f.calls[key] = fl
	return fl
}

// leave drops a waiter; the last one out cancels the flight.
func (f *flights) leave(key string, fl *flight) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if f.calls[key] == fl {
		delete(f.calls, key)
	}
}

// New creates a Geocoder. c may be nil, in which case every lookup goes
// to the provider and nothing is remembered.
func New(provider Provider, c *cache.Cache, opts Options) *Geocoder {
	if c == nil {
		c = cache.New(nil)
	}
	return &Geocoder{
		provider: provider,
		cache:    c,
		opts:     opts.withDefaults(),
		flights:  &flights{calls: make(map[string]*flight)},
	}
}

// ForOwner returns a Geocoder that stores results under ownerID's key
// space. The provider, cache and in-flight lookups are shared.
func (g *Geocoder) ForOwner(ownerID string) *Geocoder {
	clone := *g
	clone.owner = ownerID
	return &clone
}

// Owner returns the owner id used in cache keys.
func (g *Geocoder) Owner() string {
	return g.owner
}

// Key returns the cache key for address, or "" when the address
// normalizes to nothing.
func (g *Geocoder) Key(address string) string {
	k := geo.NormalizeAddress(address)
	if k.Empty() {
		return ""
	}
	return cache.MakeKey(cache.KeyParts{
		Namespace: g.opts.Namespace,
		Version:   g.opts.Version,
		OwnerID:   g.owner,
		Parts:     []string{k.String()},
	})
}

// OwnerPrefix returns the cache prefix holding every result for ownerID.
func (g *Geocoder) OwnerPrefix(ownerID string) string {
	return cache.OwnerPrefix(g.opts.Namespace, g.opts.Version, ownerID)
}

// Cached returns a previously resolved point without touching the network.
func (g *Geocoder) Cached(address string) (geo.Point, bool) {
	key := g.Key(address)
	if key == "" {
		return geo.Point{}, false
	}
	return g.cached(key)
}

func (g *Geocoder) cached(key string) (geo.Point, bool) {
	var p geo.Point
	if !g.cache.Get(key, cache.GetOptions{TTL: g.opts.TTL}, &p) {
		return geo.Point{}, false
	}
	if !p.Valid() {
		// Written by an older build that did not validate; forget it.
		g.cache.Remove(key)
		return geo.Point{}, false
	}
	return p, true
}

// Resolve returns the coordinate for address.
//
// Order of operations:
//  1. Normalize; an empty address is unresolved without any network call.
//  2. Cache hit with a valid point: return it.
//  3. One provider search; first candidate only.
//  4. Validate; invalid coordinates are unresolved and not cached.
//  5. Cache with the configured TTL and return.
//
// Concurrent Resolve calls for the same key share one provider call.
// If ctx ends first the caller gets (Point{}, false). When every caller of
// a shared call has gone, the call is cancelled and nothing is cached.
func (g *Geocoder) Resolve(ctx context.Context, address string) (geo.Point, bool) {
	key := g.Key(address)
	if key == "" {
		metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return geo.Point{}, false
	}

	if p, ok := g.cached(key); ok {
		metrics.GeocodeRequests.WithLabelValues("cache_hit").Inc()
		return p, true
	}

	if ctx.Err() != nil {
		metrics.GeocodeRequests.WithLabelValues("cancelled").Inc()
		return geo.Point{}, false
	}

	fl := g.flights.join(key, g.opts.LookupTimeout)
	defer g.flights.leave(key, fl)

	ch := g.flights.group.DoChan(fl.id, func() (any, error) {
		return g.lookup(fl.ctx, key, address)
	})

	select {
	case <-ctx.Done():
		metrics.GeocodeRequests.WithLabelValues("cancelled").Inc()
		logging.Ctx(ctx).Debug().Str("address", address).Msg("Geocode abandoned by caller")
		return geo.Point{}, false
	case res := <-ch:
		if res.Err != nil {
			outcome := "unresolved"
			if errors.Is(res.Err, geo.ErrInvalidCoordinates) {
				outcome = "invalid"
			}
			metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
			logging.Ctx(ctx).Debug().Err(res.Err).Str("address", address).Str("provider", g.provider.Name()).Msg("Geocode unresolved")
			return geo.Point{}, false
		}
		metrics.GeocodeRequests.WithLabelValues("resolved").Inc()
		return res.Val.(geo.Point), true
	}
}

func (g *Geocoder) lookup(ctx context.Context, key, address string) (geo.Point, error) {
	candidates, err := g.provider.Search(ctx, address)
	if err != nil {
		return geo.Point{}, fmt.Errorf("search %q: %w", address, err)
	}
	if len(candidates) == 0 {
		return geo.Point{}, ErrNoCandidates
	}

	p := candidates[0].Point
	if err := geo.ValidateCoordinates(p.Lat, p.Lng); err != nil {
		return geo.Point{}, err
	}

	// Every caller left while the provider answered.
	if err := ctx.Err(); err != nil {
		return geo.Point{}, err
	}
	if !g.cache.Set(key, p, cache.SetOptions{TTL: g.opts.TTL}) {
		logging.Debug().Str("key", key).Str("tier", g.cache.Tier()).Msg("Geocode result not cached")
	}
	return p, nil
}
