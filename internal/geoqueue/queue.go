// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package geoqueue resolves comparable-listing addresses one at a time,
// paced to the geocoding provider's rate limit and deduplicated by
// listing id or normalized address.
package geoqueue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// DefaultDelay is the minimum spacing between outbound lookups.
const DefaultDelay = 1100 * time.Millisecond

// Resolver is the subset of the geocoder the queue needs.
type Resolver interface {
	// Resolve performs a cache-first lookup that may hit the network.
	Resolve(ctx context.Context, address string) (geo.Point, bool)

	// Cached answers from cache only.
	Cached(address string) (geo.Point, bool)
}

// JobState is the lifecycle of one dedup key.
type JobState int

const (
	StateUnknown JobState = iota
	StateEnqueued
	StateInFlight
	StateResolved
	StateFailed
)

// String implements fmt.Stringer.
func (s JobState) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StateInFlight:
		return "in_flight"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Queue.
type Options struct {
	// Delay between consecutive outbound lookups. Zero means DefaultDelay.
	Delay time.Duration

	// OnResolved is called from the worker goroutine after each point is
	// published, and never after Close returns. It must not call Close.
	OnResolved func(key string, p geo.Point)
}

type job struct {
	key      string
	query    string
	enqueued time.Time
}

// Queue is a FIFO of geocoding jobs drained by a single worker goroutine.
//
// A key that is enqueued, in flight or resolved is never enqueued again,
// so repeated submissions of the same rows cost nothing. A failed key may
// be submitted again later. Rows whose address is already cached are
// published without waiting for a rate-limit slot.
type Queue struct {
	resolver   Resolver
	limiter    *rate.Limiter
	delay      time.Duration
	onResolved func(key string, p geo.Point)

	// lastDone is when the previous outbound lookup returned. Owned by the
	// worker goroutine.
	lastDone time.Time

	mu      sync.Mutex
	pending []job
	states  map[string]JobState
	results map[string]geo.Point
	mounted bool

	// publishMu serializes publication against Close.
	publishMu sync.Mutex

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a queue and starts its worker.
func New(resolver Resolver, opts Options) *Queue {
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		resolver:   resolver,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		delay:      delay,
		onResolved: opts.OnResolved,
		states:     make(map[string]JobState),
		results:    make(map[string]geo.Point),
		mounted:    true,
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues every row that has no usable direct coordinate and whose
// dedup key is not already known. It returns the number of new jobs.
func (q *Queue) Submit(rows []geo.Row) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.mounted {
		return 0
	}

	added := 0
	now := time.Now()
	for _, row := range rows {
		if _, ok := row.DirectPoint(); ok {
			continue
		}
		key := row.DedupKey()
		if key == "" {
			continue
		}
		switch q.states[key] {
		case StateEnqueued, StateInFlight, StateResolved:
			metrics.QueueJobs.WithLabelValues("skipped").Inc()
			continue
		}

		q.states[key] = StateEnqueued
		q.pending = append(q.pending, job{key: key, query: row.Query(), enqueued: now})
		added++
	}

	if added > 0 {
		metrics.QueueDepth.Add(float64(added))
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return added
}

// Results returns a copy of every published point by dedup key.
func (q *Queue) Results() map[string]geo.Point {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]geo.Point, len(q.results))
	for k, v := range q.results {
		out[k] = v
	}
	return out
}

// State returns the lifecycle state of key.
func (q *Queue) State(key string) JobState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.states[key]
}

// Pending returns the number of jobs not yet started.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Idle reports whether nothing is enqueued or in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		return false
	}
	for _, s := range q.states {
		if s == StateInFlight {
			return false
		}
	}
	return true
}

// Close unmounts the queue: nothing is published afterwards, the in-flight
// lookup is cancelled and the worker exits. Close blocks until then and is
// safe to call more than once.
func (q *Queue) Close() {
	q.publishMu.Lock()
	q.mu.Lock()
	wasMounted := q.mounted
	q.mounted = false
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	q.publishMu.Unlock()

	q.cancel()
	<-q.done

	if wasMounted && dropped > 0 {
		metrics.QueueDepth.Sub(float64(dropped))
		metrics.QueueJobs.WithLabelValues("discarded").Add(float64(dropped))
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		j, ok := q.next()
		if !ok {
			return
		}
		q.process(j)
	}
}

// next blocks until a job is available or the queue is closed.
func (q *Queue) next() (job, bool) {
	for {
		q.mu.Lock()
		if !q.mounted {
			q.mu.Unlock()
			return job{}, false
		}
		if len(q.pending) > 0 {
			j := q.pending[0]
			q.pending = q.pending[1:]
			q.states[j.key] = StateInFlight
			q.mu.Unlock()
			metrics.QueueDepth.Dec()
			return j, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.ctx.Done():
			return job{}, false
		}
	}
}

func (q *Queue) process(j job) {
	if p, ok := q.resolver.Cached(j.query); ok {
		q.publish(j.key, p, "cached")
		return
	}

	if err := q.pace(); err != nil {
		q.finish(j.key, StateFailed)
		metrics.QueueJobs.WithLabelValues("discarded").Inc()
		return
	}
	metrics.QueueWait.Observe(time.Since(j.enqueued).Seconds())

	p, ok := q.resolver.Resolve(q.ctx, j.query)
	q.lastDone = time.Now()
	if !ok {
		q.finish(j.key, StateFailed)
		metrics.QueueJobs.WithLabelValues("failed").Inc()
		logging.Debug().Str("key", j.key).Str("query", j.query).Msg("Geocode job failed")
		return
	}
	q.publish(j.key, p, "resolved")
}

// pace blocks until the next outbound call may start: delay after the
// previous lookup returned, so starts are at least delay apart in wall time.
func (q *Queue) pace() error {
	if err := q.limiter.Wait(q.ctx); err != nil {
		return err
	}
	if !q.lastDone.IsZero() {
		if gap := q.delay - time.Since(q.lastDone); gap > 0 {
			t := time.NewTimer(gap)
			select {
			case <-t.C:
			case <-q.ctx.Done():
				t.Stop()
				return q.ctx.Err()
			}
		}
	}
	return nil
}

func (q *Queue) finish(key string, state JobState) {
	q.mu.Lock()
	q.states[key] = state
	q.mu.Unlock()
}

func (q *Queue) publish(key string, p geo.Point, outcome string) {
	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	q.mu.Lock()
	if !q.mounted {
		q.states[key] = StateFailed
		q.mu.Unlock()
		metrics.QueueJobs.WithLabelValues("discarded").Inc()
		return
	}
	q.states[key] = StateResolved
	q.results[key] = p
	q.mu.Unlock()

	metrics.QueueJobs.WithLabelValues(outcome).Inc()
	if q.onResolved != nil {
		q.onResolved(key, p)
	}
}
