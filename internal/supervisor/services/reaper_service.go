// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package services

import (
	"context"
	"time"
)

// SessionReaper closes sessions idle for longer than maxIdle.
// Satisfied by *session.Registry.
type SessionReaper interface {
	ReapIdle(maxIdle time.Duration) int
	CloseAll()
}

// ReaperService periodically unmounts map sessions whose browser went away
// without a DELETE. On shutdown it closes every remaining session so no
// queue worker outlives the process.
type ReaperService struct {
	reaper   SessionReaper
	maxIdle  time.Duration
	interval time.Duration
	name     string
}

// NewReaperService creates the service.
func NewReaperService(reaper SessionReaper, maxIdle, interval time.Duration) *ReaperService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReaperService{
		reaper:   reaper,
		maxIdle:  maxIdle,
		interval: interval,
		name:     "session-reaper",
	}
}

// Serve implements suture.Service.
func (s *ReaperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.reaper.CloseAll()
			return ctx.Err()
		case <-ticker.C:
			s.reaper.ReapIdle(s.maxIdle)
		}
	}
}

// String implements fmt.Stringer; suture uses it in event logs.
func (s *ReaperService) String() string {
	return s.name
}
