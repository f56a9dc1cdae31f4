// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package mapsync decides when the map viewport follows the known pins and
// when it leaves the user alone.
//
// The machine has two states. In AutoFit every change to the point set
// produces a fit command. The first user gesture that is not caused by a
// programmatic fit moves it to UserControlled, after which point changes
// produce nothing, with one exception: the first time the subject point
// appears before any fit has included it, a single forced fit is issued
// regardless of state. That fit is acknowledged by the next Tick, after
// which it can never fire again for this machine.
package mapsync

import (
	"github.com/tomtom215/mapsync/internal/geo"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// State is the top-level viewport ownership.
type State int

const (
	StateAutoFit State = iota
	StateUserControlled
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateUserControlled {
		return "user_controlled"
	}
	return "auto_fit"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Interaction is a user gesture on the map.
type Interaction string

const (
	PointerDown Interaction = "pointerdown"
	TouchStart  Interaction = "touchstart"
	DragStart   Interaction = "dragstart"
	ZoomStart   Interaction = "zoomstart"
)

// ParseInteraction maps an event name to an Interaction.
func ParseInteraction(s string) (Interaction, bool) {
	switch i := Interaction(s); i {
	case PointerDown, TouchStart, DragStart, ZoomStart:
		return i, true
	}
	return "", false
}

// Config holds viewport policy.
type Config struct {
	SinglePointZoom int
	MaxFitZoom      int
	PaddingPx       int
	DefaultCenter   geo.Point
	DefaultZoom     int

	// ViewportWidth and ViewportHeight, when known, let fit commands carry
	// an estimated zoom.
	ViewportWidth  int
	ViewportHeight int
}

// DefaultConfig centers empty maps on Erie, PA.
func DefaultConfig() Config {
	return Config{
		SinglePointZoom: 15,
		MaxFitZoom:      16,
		PaddingPx:       40,
		DefaultCenter:   geo.Point{Lat: 42.1292, Lng: -80.0852},
		DefaultZoom:     9,
	}
}

// ViewState is a snapshot of the machine.
type ViewState struct {
	State             State       `json:"state"`
	SubjectPoint      *geo.Point  `json:"subject_point,omitempty"`
	CompPoints        []geo.Point `json:"comp_points"`
	UserInteracted    bool        `json:"user_interacted"`
	DidFitWithSubject bool        `json:"did_fit_with_subject"`
	ForceFitOnce      bool        `json:"force_fit_once"`
	Fitting           bool        `json:"fitting"`
}

// Machine is the viewport state machine. It is not safe for concurrent
// use; callers serialize access.
type Machine struct {
	cfg Config

	subject *geo.Point
	comps   []geo.Point
	seen    bool

	userInteracted    bool
	didFitWithSubject bool
	forceFitOnce      bool

	// fitting is the guard raised while a programmatic fit animates.
	fitting bool

	// forcedIssued: the forced fit went out and awaits its Tick.
	forcedIssued bool
	// subjectFitIssued: a fit containing the subject awaits its Tick.
	subjectFitIssued bool
}

// New creates a machine in AutoFit with no points.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// State returns the current top-level state.
func (m *Machine) State() State {
	if m.userInteracted {
		return StateUserControlled
	}
	return StateAutoFit
}

// SetPoints replaces the known points and returns the viewport command the
// change calls for. subject may be nil. A call that repeats the current
// point set returns CommandNone.
func (m *Machine) SetPoints(subject *geo.Point, comps []geo.Point) Command {
	changed := !m.seen || !samePoint(m.subject, subject) || !samePoints(m.comps, comps)

	if m.subject == nil && subject != nil && !m.didFitWithSubject {
		m.forceFitOnce = true
	}

	if subject != nil {
		s := *subject
		m.subject = &s
	} else {
		m.subject = nil
	}
	m.comps = append(m.comps[:0:0], comps...)
	m.seen = true

	if !changed {
		return m.issue(Command{Kind: CommandNone})
	}
	return m.evaluate()
}

// evaluate applies the auto-fit rule to the current points.
func (m *Machine) evaluate() Command {
	forced := m.forceFitOnce && !m.forcedIssued
	if m.userInteracted && !forced {
		return m.issue(Command{Kind: CommandNone})
	}

	cmd := m.fitCommand()
	if m.subject != nil && cmd.Kind != CommandDefaultView {
		m.subjectFitIssued = true
		if forced {
			m.forcedIssued = true
			cmd.Forced = m.userInteracted
		}
	}
	return m.issue(cmd)
}

func (m *Machine) fitCommand() Command {
	points := m.points()
	switch len(points) {
	case 0:
		c := m.cfg.DefaultCenter
		return Command{Kind: CommandDefaultView, Center: &c, Zoom: m.cfg.DefaultZoom}
	case 1:
		c := points[0]
		return Command{Kind: CommandCenter, Center: &c, Zoom: m.cfg.SinglePointZoom}
	default:
		b, _ := geo.BoundsOf(points)
		cmd := Command{
			Kind:      CommandFitBounds,
			Bounds:    &b,
			PaddingPx: m.cfg.PaddingPx,
			MaxZoom:   m.cfg.MaxFitZoom,
		}
		if m.cfg.ViewportWidth > 0 && m.cfg.ViewportHeight > 0 {
			cmd.Zoom = geo.FitZoom(b, m.cfg.ViewportWidth, m.cfg.ViewportHeight, m.cfg.PaddingPx, m.cfg.MaxFitZoom)
		}
		return cmd
	}
}

func (m *Machine) issue(cmd Command) Command {
	if !cmd.IsNone() {
		kind := cmd.Kind.String()
		if cmd.Forced {
			kind = "forced"
		}
		metrics.ViewportFits.WithLabelValues(kind).Inc()
	}
	return cmd
}

// points returns subject first, then comps.
func (m *Machine) points() []geo.Point {
	out := make([]geo.Point, 0, len(m.comps)+1)
	if m.subject != nil {
		out = append(out, *m.subject)
	}
	return append(out, m.comps...)
}

// Interact records a user gesture. Gestures arriving while a programmatic
// fit is in progress are ignored. It reports whether the gesture moved the
// machine to UserControlled.
func (m *Machine) Interact(kind Interaction) bool {
	if _, ok := ParseInteraction(string(kind)); !ok {
		return false
	}
	if m.fitting || m.userInteracted {
		return false
	}
	m.userInteracted = true
	return true
}

// FitStarted raises the guard for a programmatic fit.
func (m *Machine) FitStarted() {
	m.fitting = true
}

// FitCompleted lowers the guard.
func (m *Machine) FitCompleted() {
	m.fitting = false
}

// Tick acknowledges the last render. A pending fit that included the
// subject marks didFitWithSubject, and a pending forced fit is cleared.
func (m *Machine) Tick() {
	if m.subjectFitIssued {
		m.didFitWithSubject = true
		m.subjectFitIssued = false
	}
	if m.forcedIssued {
		m.forceFitOnce = false
		m.forcedIssued = false
		m.didFitWithSubject = true
	}
}

// Snapshot returns the current view state.
func (m *Machine) Snapshot() ViewState {
	vs := ViewState{
		State:             m.State(),
		CompPoints:        append([]geo.Point{}, m.comps...),
		UserInteracted:    m.userInteracted,
		DidFitWithSubject: m.didFitWithSubject,
		ForceFitOnce:      m.forceFitOnce,
		Fitting:           m.fitting,
	}
	if m.subject != nil {
		s := *m.subject
		vs.SubjectPoint = &s
	}
	return vs
}

// Markers returns the pins to draw. The subject stacks above every
// comparable and rises on hover, so coincident pins never hide it.
func (m *Machine) Markers() []Marker {
	out := make([]Marker, 0, len(m.comps)+1)
	for i, p := range m.comps {
		out = append(out, Marker{Kind: "comparable", Index: i, Point: p, ZIndex: ComparableZIndex})
	}
	if m.subject != nil {
		out = append(out, Marker{Kind: "subject", Point: *m.subject, ZIndex: SubjectZIndex, RiseOnHover: true})
	}
	return out
}

func samePoint(a, b *geo.Point) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func samePoints(a, b []geo.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
