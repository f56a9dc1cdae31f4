// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package mapsync

import (
	"fmt"

	"github.com/tomtom215/mapsync/internal/geo"
)

// CommandKind is the viewport change the renderer should apply.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandCenter
	CommandFitBounds
	CommandDefaultView
)

var commandNames = map[CommandKind]string{
	CommandNone:        "none",
	CommandCenter:      "center",
	CommandFitBounds:   "fit_bounds",
	CommandDefaultView: "default_view",
}

// String implements fmt.Stringer.
func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k CommandKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CommandKind) UnmarshalText(b []byte) error {
	for kind, name := range commandNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown command kind %q", b)
}

// Command is one viewport instruction. Which fields are set depends on Kind:
//
//	CommandCenter:      Center, Zoom
//	CommandFitBounds:   Bounds, PaddingPx, MaxZoom (Zoom is an estimate when the viewport size is known)
//	CommandDefaultView: Center, Zoom
type Command struct {
	Kind      CommandKind `json:"kind"`
	Center    *geo.Point  `json:"center,omitempty"`
	Zoom      int         `json:"zoom,omitempty"`
	Bounds    *geo.Bounds `json:"bounds,omitempty"`
	PaddingPx int         `json:"padding_px,omitempty"`
	MaxZoom   int         `json:"max_zoom,omitempty"`

	// Forced is set on the one-shot fit that brings a late subject into view.
	Forced bool `json:"forced,omitempty"`
}

// IsNone reports whether the command leaves the viewport alone.
func (c Command) IsNone() bool {
	return c.Kind == CommandNone
}

// Marker is one pin for the renderer.
type Marker struct {
	Kind        string    `json:"kind"` // "subject" or "comparable"
	Index       int       `json:"index"`
	Point       geo.Point `json:"point"`
	ZIndex      int       `json:"z_index"`
	RiseOnHover bool      `json:"rise_on_hover"`
}

// Marker stacking.
const (
	SubjectZIndex    = 1000
	ComparableZIndex = 0
)
