// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geocode

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/mapsync/internal/geo"
)

// stampProvider records the start of every search.
type stampProvider struct {
	mu     sync.Mutex
	starts []time.Time
}

func (s *stampProvider) Name() string { return "stamp" }

func (s *stampProvider) Search(context.Context, string) ([]Candidate, error) {
	s.mu.Lock()
	s.starts = append(s.starts, time.Now())
	s.mu.Unlock()
	return []Candidate{{Point: geo.Point{Lat: 42.1, Lng: -80.1}}}, nil
}

func TestRateLimitedProviderSpacesConcurrentCallers(t *testing.T) {
	const interval = 30 * time.Millisecond
	inner := &stampProvider{}
	p := NewRateLimitedProvider(inner, interval)

	if p.Name() != "stamp" {
		t.Errorf("Name = %q", p.Name())
	}

	const callers = 4
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Search(context.Background(), "1 Main St"); err != nil {
				t.Errorf("Search: %v", err)
			}
		}()
	}
	wg.Wait()

	starts := append([]time.Time(nil), inner.starts...)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	if len(starts) != callers {
		t.Fatalf("calls = %d, want %d", len(starts), callers)
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval {
			t.Errorf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestRateLimitedProviderCancelWhileWaiting(t *testing.T) {
	held := newBlockingProvider()
	defer close(held.release)
	p := NewRateLimitedProvider(held, time.Hour)

	go func() { _, _ = p.Search(context.Background(), "first") }()
	<-held.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Search(ctx, "second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("cancelled caller waited %v", waited)
	}
	if n := held.calls.Load(); n != 1 {
		t.Errorf("inner calls = %d, want 1", n)
	}
}

func TestRateLimitedProviderZeroIntervalDoesNotWait(t *testing.T) {
	inner := &stampProvider{}
	p := NewRateLimitedProvider(inner, 0)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := p.Search(context.Background(), "x"); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("unpaced calls took %v", elapsed)
	}
}
