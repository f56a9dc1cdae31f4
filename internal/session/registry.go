// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/geoqueue"
	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// ErrSessionNotFound is returned for unknown or already closed sessions.
var ErrSessionNotFound = errors.New("session not found")

// ResolverFactory returns the resolver a session for ownerID should use.
type ResolverFactory func(ownerID string) geoqueue.Resolver

// Registry tracks the mounted sessions of this process.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	resolverFor ResolverFactory
	cfg         Config
	now         func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(resolverFor ResolverFactory, cfg Config) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		resolverFor: resolverFor,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Create mounts a new session and starts resolving its rows.
func (r *Registry) Create(ownerID string, subject *geo.Row, comps []geo.Row) (*Session, View) {
	s := New(ownerID, r.resolverFor(ownerID), r.cfg)
	s.now = r.now
	s.lastActive = r.now()

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	metrics.SessionsActive.Inc()

	v := s.Start(subject, comps)
	logging.Debug().Str("session_id", s.ID()).Int("comparables", len(comps)).Msg("Map session created")
	return s, v
}

// Get returns a mounted session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete unmounts and forgets a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	metrics.SessionsActive.Dec()
	return nil
}

// Len returns the number of mounted sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ReapIdle closes every session with no client call for longer than
// maxIdle and returns how many were closed.
func (r *Registry) ReapIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
		metrics.SessionsActive.Dec()
	}
	if len(idle) > 0 {
		logging.Info().Int("reaped", len(idle)).Dur("max_idle", maxIdle).Msg("Reaped idle map sessions")
	}
	return len(idle)
}

// CloseAll unmounts every session, e.g. on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
		metrics.SessionsActive.Dec()
	}
}
