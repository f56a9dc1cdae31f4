// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// AddressKey is the normalized form of a free-text address. Two addresses
// with the same key are the same geocoding subject.
type AddressKey string

// NormalizeAddress case-folds, strips punctuation and collapses whitespace.
//
//	NormalizeAddress("123 Main St., Erie,  PA 16501") == "123 main st erie pa 16501"
func NormalizeAddress(address string) AddressKey {
	folded := cases.Fold().String(norm.NFKC.String(address))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return AddressKey(b.String())
}

// Empty reports whether the key carries no geocodable content.
func (k AddressKey) Empty() bool {
	return k == ""
}

// String implements fmt.Stringer.
func (k AddressKey) String() string {
	return string(k)
}

// Row is one listing record as supplied by the comparable-listings or
// subject-property collaborators: an optional direct coordinate and an
// address to fall back on.
type Row struct {
	ID      string   `json:"id,omitempty" validate:"max=128"`
	Address string   `json:"address" validate:"max=500"`
	City    string   `json:"city,omitempty" validate:"max=100"`
	State   string   `json:"state,omitempty" validate:"max=50"`
	Zip     string   `json:"zip,omitempty" validate:"max=20"`
	Lat     *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng     *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

// Query formats the row as "address, city, state zip", skipping empty parts.
func (r Row) Query() string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(r.Address); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.City); s != "" {
		parts = append(parts, s)
	}
	stateZip := strings.TrimSpace(strings.TrimSpace(r.State) + " " + strings.TrimSpace(r.Zip))
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}

// DirectPoint returns the row's own coordinate when it is usable.
func (r Row) DirectPoint() (Point, bool) {
	return FromOptional(r.Lat, r.Lng)
}

// DedupKey is the listing id when present, otherwise the normalized query.
func (r Row) DedupKey() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return "id:" + id
	}
	if k := NormalizeAddress(r.Query()); !k.Empty() {
		return "addr:" + string(k)
	}
	return ""
}
