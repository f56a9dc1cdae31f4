// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/geoqueue"
	"github.com/tomtom215/mapsync/internal/mapsync"
	"github.com/tomtom215/mapsync/internal/session"
)

type fakeReaper struct {
	mu       sync.Mutex
	reaps    int
	maxIdles []time.Duration
	closed   bool
	reaped   chan struct{}
}

func newFakeReaper() *fakeReaper {
	return &fakeReaper{reaped: make(chan struct{}, 16)}
}

func (f *fakeReaper) ReapIdle(maxIdle time.Duration) int {
	f.mu.Lock()
	f.reaps++
	f.maxIdles = append(f.maxIdles, maxIdle)
	f.mu.Unlock()
	select {
	case f.reaped <- struct{}{}:
	default:
	}
	return 1
}

func (f *fakeReaper) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestReaperService_Interface(t *testing.T) {
	var _ suture.Service = (*ReaperService)(nil)
	var _ SessionReaper = (*session.Registry)(nil)
}

func TestNewReaperService_DefaultInterval(t *testing.T) {
	svc := NewReaperService(newFakeReaper(), time.Minute, 0)
	if svc.interval != time.Minute {
		t.Errorf("expected default interval 1m, got %v", svc.interval)
	}
	if svc.String() != "session-reaper" {
		t.Errorf("expected 'session-reaper', got %q", svc.String())
	}
}

func TestReaperService_ReapsOnInterval(t *testing.T) {
	reaper := newFakeReaper()
	svc := NewReaperService(reaper, 30*time.Minute, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-reaper.reaped:
		case <-time.After(time.Second):
			t.Fatalf("reap %d did not happen", i+1)
		}
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	reaper.mu.Lock()
	defer reaper.mu.Unlock()
	if reaper.maxIdles[0] != 30*time.Minute {
		t.Errorf("expected maxIdle 30m, got %v", reaper.maxIdles[0])
	}
	if !reaper.closed {
		t.Error("expected remaining sessions closed on shutdown")
	}
}

// nopResolver never resolves anything.
type nopResolver struct{}

func (nopResolver) Resolve(context.Context, string) (geo.Point, bool) { return geo.Point{}, false }
func (nopResolver) Cached(string) (geo.Point, bool)                   { return geo.Point{}, false }

func TestReaperService_WithRegistry(t *testing.T) {
	registry := session.NewRegistry(
		func(string) geoqueue.Resolver { return nopResolver{} },
		session.Config{QueueDelay: time.Millisecond, Map: mapsync.DefaultConfig()},
	)
	t.Cleanup(registry.CloseAll)

	s, _ := registry.Create("user-42", nil, nil)
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	svc := NewReaperService(registry, time.Nanosecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	// The subscription closes when the session is unmounted.
	deadline := time.After(2 * time.Second)
	for reaped := false; !reaped; {
		select {
		case _, ok := <-updates:
			reaped = !ok
		case <-deadline:
			t.Fatal("idle session was not reaped")
		}
	}
	if registry.Len() != 0 {
		t.Errorf("expected empty registry, got %d sessions", registry.Len())
	}

	cancel()
	<-errCh
}
