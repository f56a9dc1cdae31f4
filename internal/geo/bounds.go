// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geo

import "math"

// tileSize is the Web Mercator tile edge in pixels used by the map toolkit.
const tileSize = 256

// Bounds is an axis-aligned latitude/longitude box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// BoundsOf returns the smallest box containing every point. ok is false
// for an empty slice.
func BoundsOf(points []Point) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{South: points[0].Lat, North: points[0].Lat, West: points[0].Lng, East: points[0].Lng}
	for _, p := range points[1:] {
		b.South = math.Min(b.South, p.Lat)
		b.North = math.Max(b.North, p.Lat)
		b.West = math.Min(b.West, p.Lng)
		b.East = math.Max(b.East, p.Lng)
	}
	return b, true
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Point {
	return Point{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2}
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}

// FitZoom estimates the integer Web Mercator zoom at which b fits in a
// width x height pixel viewport after padding on every side, capped at
// maxZoom. A degenerate box returns maxZoom.
func FitZoom(b Bounds, width, height, padding, maxZoom int) int {
	usableW := float64(width - 2*padding)
	usableH := float64(height - 2*padding)
	if usableW <= 0 || usableH <= 0 {
		return 0
	}

	lngFraction := (b.East - b.West) / 360
	latFraction := (mercatorY(b.North) - mercatorY(b.South)) / (2 * math.Pi)
	if lngFraction <= 0 && latFraction <= 0 {
		return maxZoom
	}

	zoom := float64(maxZoom)
	if lngFraction > 0 {
		zoom = math.Min(zoom, math.Log2(usableW/tileSize/lngFraction))
	}
	if latFraction > 0 {
		zoom = math.Min(zoom, math.Log2(usableH/tileSize/latFraction))
	}
	if zoom < 0 {
		return 0
	}
	return int(math.Floor(zoom))
}

func mercatorY(lat float64) float64 {
	s := math.Sin(lat * math.Pi / 180)
	return math.Log((1+s)/(1-s)) / 2
}
