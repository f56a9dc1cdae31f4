// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package geo holds the coordinate and address primitives shared by the
// geocoder, the geocode queue and the map synchronization state machine.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinates wraps every ValidateCoordinates failure.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// ZeroEpsilon is the tolerance under which both lat and lng are considered
// the upstream "coordinate missing" sentinel (0,0).
const ZeroEpsilon = 1e-6

// Point is a WGS84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is usable on the map: finite, within range, and
// not the zero/zero sentinel.
func (p Point) Valid() bool {
	return ValidateCoordinates(p.Lat, p.Lng) == nil
}

// String formats the point for logs.
func (p Point) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lng)
}

// ValidateCoordinates returns a descriptive error when lat/lng cannot be
// placed on the map.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("%w: not finite: lat=%v lng=%v", ErrInvalidCoordinates, lat, lng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinates, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinates, lng)
	}
	if math.Abs(lat) < ZeroEpsilon && math.Abs(lng) < ZeroEpsilon {
		return fmt.Errorf("%w: (%v,%v) is the zero sentinel", ErrInvalidCoordinates, lat, lng)
	}
	return nil
}

// FromOptional builds a point from nullable collaborator fields. It returns
// false when either field is missing or the pair is not Valid.
func FromOptional(lat, lng *float64) (Point, bool) {
	if lat == nil || lng == nil {
		return Point{}, false
	}
	p := Point{Lat: *lat, Lng: *lng}
	if !p.Valid() {
		return Point{}, false
	}
	return p, true
}

// Equal compares two points within ZeroEpsilon.
func (p Point) Equal(o Point) bool {
	return math.Abs(p.Lat-o.Lat) < ZeroEpsilon && math.Abs(p.Lng-o.Lng) < ZeroEpsilon
}
