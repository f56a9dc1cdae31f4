// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geo

import (
	"math"
	"testing"
)

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name  string
		point Point
		valid bool
	}{
		{"zero sentinel", Point{Lat: 0, Lng: 0}, false},
		{"near zero sentinel", Point{Lat: 0.0000001, Lng: -0.0000001}, false},
		{"latitude too high", Point{Lat: 91, Lng: 0}, false},
		{"latitude too low", Point{Lat: -90.5, Lng: 10}, false},
		{"longitude too high", Point{Lat: 0, Lng: 181}, false},
		{"NaN", Point{Lat: math.NaN(), Lng: 10}, false},
		{"Inf", Point{Lat: 10, Lng: math.Inf(1)}, false},
		{"new york", Point{Lat: 40.7128, Lng: -74.0060}, true},
		{"erie", Point{Lat: 42.129, Lng: -80.085}, true},
		{"equator only", Point{Lat: 0, Lng: 32.5}, true},
		{"corner", Point{Lat: -90, Lng: 180}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.point.Valid(); got != tt.valid {
				t.Errorf("Valid(%v) = %v, want %v", tt.point, got, tt.valid)
			}
		})
	}
}

func TestFromOptional(t *testing.T) {
	lat, lng := 42.129, -80.085
	zero := 0.0

	if _, ok := FromOptional(nil, &lng); ok {
		t.Error("expected missing lat to be rejected")
	}
	if _, ok := FromOptional(&zero, &zero); ok {
		t.Error("expected zero sentinel to be rejected")
	}
	p, ok := FromOptional(&lat, &lng)
	if !ok || p.Lat != lat || p.Lng != lng {
		t.Errorf("FromOptional = %v, %v", p, ok)
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want AddressKey
	}{
		{"123 Main St, Erie, PA 16501", "123 main st erie pa 16501"},
		{"  123   MAIN st.,erie,pa 16501 ", "123 main st erie pa 16501"},
		{"Straße 5", "strasse 5"},
		{"#12-B Oak Ave.", "12 b oak ave"},
		{"   ", ""},
		{",,,", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeAddress(tt.in); got != tt.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRowQueryAndDedupKey(t *testing.T) {
	row := Row{Address: "123 Main St", City: "Erie", State: "PA", Zip: "16501"}
	if got := row.Query(); got != "123 Main St, Erie, PA 16501" {
		t.Errorf("Query() = %q", got)
	}
	if got := row.DedupKey(); got != "addr:123 main st erie pa 16501" {
		t.Errorf("DedupKey() = %q", got)
	}

	row.ID = "MLS-42"
	if got := row.DedupKey(); got != "id:MLS-42" {
		t.Errorf("DedupKey() with id = %q", got)
	}

	if got := (Row{Address: "9 Elm", Zip: "16502"}).Query(); got != "9 Elm, 16502" {
		t.Errorf("Query() without city/state = %q", got)
	}
	if got := (Row{}).DedupKey(); got != "" {
		t.Errorf("empty row DedupKey() = %q", got)
	}
}

func TestBoundsOf(t *testing.T) {
	if _, ok := BoundsOf(nil); ok {
		t.Fatal("expected no bounds for empty input")
	}

	b, ok := BoundsOf([]Point{{42.1, -80.1}, {42.3, -79.9}, {42.2, -80.0}})
	if !ok {
		t.Fatal("expected bounds")
	}
	want := Bounds{South: 42.1, West: -80.1, North: 42.3, East: -79.9}
	if b != want {
		t.Errorf("BoundsOf = %+v, want %+v", b, want)
	}
	if !b.Contains(Point{42.2, -80.0}) {
		t.Error("expected center to be contained")
	}
	c := b.Center()
	if math.Abs(c.Lat-42.2) > 1e-9 || math.Abs(c.Lng+80.0) > 1e-9 {
		t.Errorf("Center = %v", c)
	}
}

func TestFitZoom(t *testing.T) {
	// Two pins a few hundred meters apart must be capped by maxZoom.
	near := Bounds{South: 42.1290, West: -80.0850, North: 42.1295, East: -80.0845}
	if got := FitZoom(near, 800, 600, 40, 16); got != 16 {
		t.Errorf("FitZoom(near) = %d, want 16", got)
	}

	// A whole-county spread lands well below the cap.
	wide := Bounds{South: 41.8, West: -80.5, North: 42.3, East: -79.7}
	got := FitZoom(wide, 800, 600, 40, 16)
	if got < 7 || got > 10 {
		t.Errorf("FitZoom(wide) = %d, want between 7 and 10", got)
	}

	if got := FitZoom(wide, 60, 60, 40, 16); got != 0 {
		t.Errorf("FitZoom with no usable area = %d, want 0", got)
	}
	single := Bounds{South: 42, West: -80, North: 42, East: -80}
	if got := FitZoom(single, 800, 600, 40, 15); got != 15 {
		t.Errorf("FitZoom(single) = %d, want 15", got)
	}
}
