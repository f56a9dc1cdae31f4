// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package session holds one map view's worth of state: the subject and
// comparable rows, their resolved points, the geocode queue draining the
// comparables and the viewport state machine.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/geoqueue"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/mapsync"
)

// Resolution statuses reported in a View.
const (
	StatusNone       = "none"
	StatusDirect     = "direct"
	StatusPending    = "pending"
	StatusResolved   = "resolved"
	StatusUnresolved = "unresolved"
)

// subscriberBuffer is how many views a slow subscriber may lag behind
// before older views are dropped.
const subscriberBuffer = 8

// Config configures new sessions.
type Config struct {
	QueueDelay time.Duration
	Map        mapsync.Config
}

// PinStatus describes one row's resolution.
type PinStatus struct {
	Key    string     `json:"key,omitempty"`
	Status string     `json:"status"`
	Point  *geo.Point `json:"point,omitempty"`
}

// View is what the front-end renders.
type View struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Revision    uint64            `json:"revision"`
	State       mapsync.ViewState `json:"state"`
	Command     mapsync.Command   `json:"command"`
	CommandSeq  uint64            `json:"command_seq"`
	Markers     []mapsync.Marker  `json:"markers"`
	Subject     PinStatus         `json:"subject"`
	Comparables []PinStatus       `json:"comparables"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Session is one mounted map view.
type Session struct {
	id       string
	owner    string
	resolver geoqueue.Resolver
	queue    *geoqueue.Queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	machine       *mapsync.Machine
	subject       *geo.Row
	subjectPoint  *geo.Point
	subjectStatus string
	comps         []geo.Row
	revision      uint64
	command       mapsync.Command
	commandSeq    uint64
	lastActive    time.Time
	closed        bool
	subs          map[int]chan View
	nextSub       int
	now           func() time.Time
}

// New creates a session. Call Start to begin resolving.
func New(ownerID string, resolver geoqueue.Resolver, cfg Config) *Session {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(logging.ContextWithSessionID(context.Background(), id))
	s := &Session{
		id:            id,
		owner:         ownerID,
		resolver:      resolver,
		ctx:           ctx,
		cancel:        cancel,
		machine:       mapsync.New(cfg.Map),
		subjectStatus: StatusNone,
		subs:          make(map[int]chan View),
		now:           time.Now,
	}
	s.lastActive = s.now()
	s.queue = geoqueue.New(resolver, geoqueue.Options{
		Delay:      cfg.QueueDelay,
		OnResolved: s.onComparableResolved,
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// OwnerID returns the owner the session geocodes for.
func (s *Session) OwnerID() string { return s.owner }

// Start sets the initial rows, starts the subject lookup on its own
// goroutine and submits the comparables to the queue. The subject never
// goes through the queue, so a long comparable list cannot delay it.
func (s *Session) Start(subject *geo.Row, comps []geo.Row) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subject != nil {
		row := *subject
		s.subject = &row
		s.startSubjectLocked(row)
	}
	s.comps = append([]geo.Row(nil), comps...)
	s.queue.Submit(s.comps)
	return s.refreshLocked()
}

func (s *Session) startSubjectLocked(row geo.Row) {
	if p, ok := row.DirectPoint(); ok {
		s.subjectPoint = &p
		s.subjectStatus = StatusDirect
		return
	}
	query := row.Query()
	if geo.NormalizeAddress(query).Empty() {
		s.subjectStatus = StatusUnresolved
		return
	}

	s.subjectStatus = StatusPending
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p, ok := s.resolver.Resolve(s.ctx, query)
		s.onSubjectResolved(p, ok)
	}()
}

func (s *Session) onSubjectResolved(p geo.Point, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !ok {
		s.subjectStatus = StatusUnresolved
		logging.Ctx(s.ctx).Debug().Msg("Subject address unresolved")
		s.commitLocked()
		return
	}
	s.subjectPoint = &p
	s.subjectStatus = StatusResolved
	s.refreshLocked()
}

func (s *Session) onComparableResolved(string, geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.refreshLocked()
}

// UpdateComparables replaces the comparable rows (a re-render). Keys the
// queue already knows are not looked up again.
func (s *Session) UpdateComparables(rows []geo.Row) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	s.comps = append([]geo.Row(nil), rows...)
	if !s.closed {
		s.queue.Submit(s.comps)
	}
	return s.refreshLocked()
}

// Interact records a user gesture.
func (s *Session) Interact(kind mapsync.Interaction) View {
	return s.update(func(m *mapsync.Machine) { m.Interact(kind) })
}

// FitStarted raises the programmatic-fit guard.
func (s *Session) FitStarted() View {
	return s.update(func(m *mapsync.Machine) { m.FitStarted() })
}

// FitCompleted lowers the programmatic-fit guard.
func (s *Session) FitCompleted() View {
	return s.update(func(m *mapsync.Machine) { m.FitCompleted() })
}

// Tick acknowledges the last render. The pending command is dropped.
func (s *Session) Tick() View {
	return s.update(func(m *mapsync.Machine) { m.Tick() })
}

func (s *Session) update(fn func(m *mapsync.Machine)) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	fn(s.machine)
	s.command = mapsync.Command{Kind: mapsync.CommandNone}
	return s.commitLocked()
}

// View returns the current view without changing anything.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
	return s.viewLocked()
}

// LastActive returns the time of the last client call.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

// refreshLocked feeds the current points to the machine and publishes. A
// new command replaces the pending one; an unchanged point set keeps the
// pending command until the client acknowledges it.
func (s *Session) refreshLocked() View {
	if cmd := s.machine.SetPoints(s.subjectPoint, s.compPointsLocked()); !cmd.IsNone() {
		s.command = cmd
		s.commandSeq++
	}
	return s.commitLocked()
}

// commitLocked bumps the revision and publishes the resulting view.
func (s *Session) commitLocked() View {
	s.revision++
	v := s.viewLocked()
	s.publishLocked(v)
	return v
}

// compPointsLocked returns the usable comparable points in row order.
func (s *Session) compPointsLocked() []geo.Point {
	results := s.queue.Results()
	points := make([]geo.Point, 0, len(s.comps))
	for _, row := range s.comps {
		if p, ok := row.DirectPoint(); ok {
			points = append(points, p)
			continue
		}
		if p, ok := results[row.DedupKey()]; ok {
			points = append(points, p)
		}
	}
	return points
}

func (s *Session) viewLocked() View {
	v := View{
		ID:         s.id,
		OwnerID:    s.owner,
		Revision:   s.revision,
		State:      s.machine.Snapshot(),
		Command:    s.command,
		CommandSeq: s.commandSeq,
		Markers:    s.machine.Markers(),
		Subject:    PinStatus{Status: s.subjectStatus},
		UpdatedAt:  s.now().UTC(),
	}
	if s.subjectPoint != nil {
		p := *s.subjectPoint
		v.Subject.Point = &p
	}

	results := s.queue.Results()
	v.Comparables = make([]PinStatus, 0, len(s.comps))
	for _, row := range s.comps {
		key := row.DedupKey()
		st := PinStatus{Key: key}
		if p, ok := row.DirectPoint(); ok {
			st.Status = StatusDirect
			st.Point = &p
		} else if p, ok := results[key]; ok {
			st.Status = StatusResolved
			st.Point = &p
		} else if key == "" {
			st.Status = StatusUnresolved
		} else {
			switch s.queue.State(key) {
			case geoqueue.StateFailed:
				st.Status = StatusUnresolved
			default:
				st.Status = StatusPending
			}
		}
		v.Comparables = append(v.Comparables, st)
	}
	return v
}

// Subscribe returns a channel receiving every new view, and a function
// that ends the subscription. The channel is closed when the session is.
func (s *Session) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan View, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// publishLocked fans v out without blocking; a full subscriber loses its
// oldest pending view.
func (s *Session) publishLocked(v View) {
	for _, ch := range s.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close unmounts the session: the subject lookup and the queue are
// cancelled, nothing is published afterwards and subscribers are released.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[int]chan View)
	s.mu.Unlock()

	s.cancel()
	s.queue.Close()
	s.wg.Wait()

	for _, ch := range subs {
		close(ch)
	}
}
