// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/geoqueue"
	"github.com/tomtom215/mapsync/internal/mapsync"
)

// stubResolver answers from a fixed table; queries listed in gates wait
// for their gate to close.
type stubResolver struct {
	mu     sync.Mutex
	points map[string]geo.Point
	gates  map[string]chan struct{}
	calls  map[string]int
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		points: make(map[string]geo.Point),
		gates:  make(map[string]chan struct{}),
		calls:  make(map[string]int),
	}
}

func (r *stubResolver) Cached(string) (geo.Point, bool) { return geo.Point{}, false }

func (r *stubResolver) Resolve(ctx context.Context, query string) (geo.Point, bool) {
	r.mu.Lock()
	r.calls[query]++
	gate := r.gates[query]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return geo.Point{}, false
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.points[query]
	return p, ok
}

func (r *stubResolver) callsFor(query string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[query]
}

var (
	subjectRow = geo.Row{Address: "123 Main St", City: "Erie", State: "PA", Zip: "16501"}
	erie       = geo.Point{Lat: 42.129, Lng: -80.085}
)

func directRow(id string, lat, lng float64) geo.Row {
	return geo.Row{ID: id, Address: id + " Comp St", City: "Erie", State: "PA", Lat: &lat, Lng: &lng}
}

func testConfig() Config {
	return Config{QueueDelay: 5 * time.Millisecond, Map: mapsync.DefaultConfig()}
}

func isClosed(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func waitForView(t *testing.T, s *Session, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := s.View(); cond(v) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	v := s.View()
	t.Fatalf("condition not met; last view: %+v", v)
	return v
}

func TestSubjectResolvesToSinglePointCenter(t *testing.T) {
	r := newStubResolver()
	r.points[subjectRow.Query()] = erie

	s := New("", r, testConfig())
	defer s.Close()

	v := s.Start(&subjectRow, nil)
	if v.Subject.Status != StatusPending {
		t.Fatalf("initial subject status = %q", v.Subject.Status)
	}
	if v.Command.Kind != mapsync.CommandDefaultView {
		t.Errorf("initial command = %v, want default_view", v.Command.Kind)
	}

	v = waitForView(t, s, func(v View) bool { return v.Subject.Status == StatusResolved })
	if *v.Subject.Point != erie {
		t.Errorf("subject point = %v", v.Subject.Point)
	}
	if v.Command.Kind != mapsync.CommandCenter || *v.Command.Center != erie || v.Command.Zoom != 15 {
		t.Errorf("command = %+v, want center on subject at zoom 15", v.Command)
	}
}

func TestSubjectIsNotQueuedBehindComparables(t *testing.T) {
	r := newStubResolver()
	r.points[subjectRow.Query()] = erie

	var comps []geo.Row
	for _, addr := range []string{"1 Slow St", "2 Slow St", "3 Slow St"} {
		row := geo.Row{Address: addr, City: "Erie", State: "PA"}
		r.points[row.Query()] = geo.Point{Lat: 42.1, Lng: -80.1}
		comps = append(comps, row)
	}

	cfg := testConfig()
	cfg.QueueDelay = time.Hour
	s := New("", r, cfg)
	defer s.Close()

	s.Start(&subjectRow, comps)
	v := waitForView(t, s, func(v View) bool { return v.Subject.Status == StatusResolved })

	pending := 0
	for _, c := range v.Comparables {
		if c.Status == StatusPending {
			pending++
		}
	}
	if pending < 2 {
		t.Errorf("expected comparables still waiting on the queue, got %+v", v.Comparables)
	}
}

func TestPanThenSubjectResolvesForcesOneFit(t *testing.T) {
	r := newStubResolver()
	r.points[subjectRow.Query()] = erie
	gate := make(chan struct{})
	r.gates[subjectRow.Query()] = gate

	s := New("", r, testConfig())
	defer s.Close()

	comps := []geo.Row{directRow("A", 42.11, -80.07), directRow("B", 42.14, -80.10)}
	v := s.Start(&subjectRow, comps)
	if v.Command.Kind != mapsync.CommandFitBounds {
		t.Fatalf("initial command = %v, want fit_bounds over direct comps", v.Command.Kind)
	}
	s.Tick()

	if v := s.Interact(mapsync.PointerDown); v.State.State != mapsync.StateUserControlled {
		t.Fatalf("state after pan = %v", v.State.State)
	}

	close(gate)
	v = waitForView(t, s, func(v View) bool { return v.Subject.Status == StatusResolved })
	if v.Command.Kind != mapsync.CommandFitBounds || !v.Command.Forced {
		t.Fatalf("command after late subject = %+v, want forced fit", v.Command)
	}
	s.Tick()

	s.Interact(mapsync.DragStart)
	v = s.UpdateComparables(append(comps, directRow("C", 42.10, -80.12)))
	if !v.Command.IsNone() {
		t.Errorf("command after further pans = %v, want none", v.Command.Kind)
	}
	if !v.State.DidFitWithSubject {
		t.Error("expected didFitWithSubject")
	}
}

func TestGestureViewsCarryNoCommand(t *testing.T) {
	lat, lng := erie.Lat, erie.Lng
	subject := subjectRow
	subject.Lat, subject.Lng = &lat, &lng

	s := New("", newStubResolver(), testConfig())
	defer s.Close()

	start := s.Start(&subject, nil)
	if start.Command.Kind != mapsync.CommandCenter || start.CommandSeq != 1 {
		t.Fatalf("start command = %+v seq %d, want center seq 1", start.Command, start.CommandSeq)
	}

	tick := s.Tick()
	pan := s.Interact(mapsync.PointerDown)
	for name, v := range map[string]View{"tick": tick, "pointerdown": pan} {
		if !v.Command.IsNone() {
			t.Errorf("%s command = %v, want none", name, v.Command.Kind)
		}
		if v.CommandSeq != start.CommandSeq {
			t.Errorf("%s command seq = %d, want %d", name, v.CommandSeq, start.CommandSeq)
		}
	}
	if !(start.Revision < tick.Revision && tick.Revision < pan.Revision) {
		t.Errorf("revisions start=%d tick=%d pointerdown=%d, want strictly increasing",
			start.Revision, tick.Revision, pan.Revision)
	}
	if pan.State.State != mapsync.StateUserControlled {
		t.Errorf("state = %v, want user_controlled", pan.State.State)
	}

	if v := s.View(); !v.Command.IsNone() || v.Revision != pan.Revision {
		t.Errorf("View() = command %v rev %d, want none rev %d", v.Command.Kind, v.Revision, pan.Revision)
	}
}

func TestUpdateComparablesDoesNotRelookupKnownKeys(t *testing.T) {
	r := newStubResolver()
	row := geo.Row{ID: "MLS-9", Address: "9 Pine St", City: "Erie", State: "PA"}
	r.points[row.Query()] = geo.Point{Lat: 42.09, Lng: -80.09}

	s := New("", r, testConfig())
	defer s.Close()

	s.Start(nil, []geo.Row{row})
	waitForView(t, s, func(v View) bool {
		return len(v.Comparables) == 1 && v.Comparables[0].Status == StatusResolved
	})

	for i := 0; i < 3; i++ {
		v := s.UpdateComparables([]geo.Row{row})
		if v.Comparables[0].Status != StatusResolved {
			t.Errorf("re-render %d status = %q", i, v.Comparables[0].Status)
		}
	}
	if n := r.callsFor(row.Query()); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}
}

func TestUnresolvedSubjectLeavesDefaultView(t *testing.T) {
	r := newStubResolver()
	s := New("", r, testConfig())
	defer s.Close()

	start := s.Start(&subjectRow, nil)
	v := waitForView(t, s, func(v View) bool { return v.Subject.Status == StatusUnresolved })
	if v.Command.Kind != mapsync.CommandDefaultView || v.CommandSeq != start.CommandSeq {
		t.Errorf("command = %v seq %d, want the pending default_view", v.Command.Kind, v.CommandSeq)
	}
	if v.Revision <= start.Revision {
		t.Errorf("revision = %d, want above %d", v.Revision, start.Revision)
	}
	if len(v.Markers) != 0 {
		t.Errorf("markers = %v", v.Markers)
	}
}

func TestSubscribeAndClose(t *testing.T) {
	r := newStubResolver()
	r.points[subjectRow.Query()] = erie
	gate := make(chan struct{})
	r.gates[subjectRow.Query()] = gate

	s := New("", r, testConfig())
	updates, cancel := s.Subscribe()
	defer cancel()

	s.Start(&subjectRow, nil)
	select {
	case v := <-updates:
		if v.Subject.Status != StatusPending {
			t.Errorf("first update subject = %q", v.Subject.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after Start")
	}

	s.Close()
	close(gate)

	for v := range updates {
		if v.Subject.Status == StatusResolved {
			t.Error("received a view published after Close")
		}
	}
	if !isClosed(s) {
		t.Error("session not closed")
	}

	late, _ := s.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription on closed session should be closed")
	}
}

func TestSlowSubscriberDropsOldViews(t *testing.T) {
	s := New("", newStubResolver(), testConfig())
	defer s.Close()

	updates, cancel := s.Subscribe()
	s.Start(nil, nil)
	for i := 0; i < subscriberBuffer*3; i++ {
		s.Tick()
	}
	if got := len(updates); got != subscriberBuffer {
		t.Errorf("buffered views = %d, want %d", got, subscriberBuffer)
	}
	cancel()
	cancel()
}

func TestRegistryLifecycle(t *testing.T) {
	r := newStubResolver()
	var owners []string
	reg := NewRegistry(func(owner string) geoqueue.Resolver {
		owners = append(owners, owner)
		return r
	}, testConfig())

	s, v := reg.Create("alice", nil, nil)
	if v.ID != s.ID() || v.OwnerID != "alice" {
		t.Errorf("view = %+v", v)
	}
	if len(owners) != 1 || owners[0] != "alice" {
		t.Errorf("resolver factory owners = %v", owners)
	}

	got, err := reg.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d", reg.Len())
	}

	if err := reg.Delete(s.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !isClosed(s) {
		t.Error("deleted session not closed")
	}
	if _, err := reg.Get(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
	if err := reg.Delete(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete = %v", err)
	}
}

func TestRegistryReapIdle(t *testing.T) {
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		clock = clock.Add(d)
		mu.Unlock()
	}

	reg := NewRegistry(func(string) geoqueue.Resolver { return newStubResolver() }, testConfig())
	reg.now = now

	stale, _ := reg.Create("", nil, nil)
	advance(20 * time.Minute)
	fresh, _ := reg.Create("", nil, nil)
	advance(15 * time.Minute)
	fresh.View()

	if n := reg.ReapIdle(30 * time.Minute); n != 1 {
		t.Fatalf("ReapIdle = %d, want 1", n)
	}
	if !isClosed(stale) || isClosed(fresh) {
		t.Errorf("stale closed=%v fresh closed=%v", isClosed(stale), isClosed(fresh))
	}

	reg.CloseAll()
	if reg.Len() != 0 || !isClosed(fresh) {
		t.Error("CloseAll left sessions mounted")
	}
}
