// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package cache

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Envelope is the stored form of every cache entry.
type Envelope struct {
	SavedAt int64           `json:"savedAt"`
	TTLMs   *int64          `json:"ttlMs,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// PayloadShape classifies a raw stored value. It is resolved once per read;
// only ShapeEnvelope is readable, every other shape is deleted on sight.
type PayloadShape int

const (
	// ShapeEnvelope is {"savedAt": <number>, "ttlMs": ..., "data": ...}.
	ShapeEnvelope PayloadShape = iota

	// ShapeLegacyTS is an older envelope keyed by a numeric "ts".
	ShapeLegacyTS

	// ShapeLegacyTSString is an older envelope whose "ts" is a string.
	ShapeLegacyTSString

	// ShapeBare is valid JSON with no envelope at all.
	ShapeBare

	// ShapeCorrupt is anything that does not parse.
	ShapeCorrupt
)

// String returns the metric label for the shape.
func (s PayloadShape) String() string {
	switch s {
	case ShapeEnvelope:
		return "envelope"
	case ShapeLegacyTS:
		return "legacy_ts"
	case ShapeLegacyTSString:
		return "legacy_ts_string"
	case ShapeBare:
		return "bare"
	default:
		return "corrupt"
	}
}

// Readable reports whether entries of this shape can be served.
func (s PayloadShape) Readable() bool {
	return s == ShapeEnvelope
}

// shapeFields holds the fields that decide the shape.
type shapeFields struct {
	SavedAt json.RawMessage `json:"savedAt"`
	TS      json.RawMessage `json:"ts"`
	TTLMs   json.RawMessage `json:"ttlMs"`
	Data    json.RawMessage `json:"data"`
}

// ParsePayload classifies raw and, for ShapeEnvelope, decodes it.
func ParsePayload(raw string) (Envelope, PayloadShape) {
	b := bytes.TrimSpace([]byte(raw))
	if len(b) == 0 || !json.Valid(b) {
		return Envelope{}, ShapeCorrupt
	}
	if b[0] != '{' {
		return Envelope{}, ShapeBare
	}

	var p shapeFields
	if err := json.Unmarshal(b, &p); err != nil {
		return Envelope{}, ShapeCorrupt
	}

	switch {
	case isPresent(p.SavedAt):
		var env Envelope
		if err := json.Unmarshal(p.SavedAt, &env.SavedAt); err != nil {
			return Envelope{}, ShapeCorrupt
		}
		if isPresent(p.TTLMs) {
			var ttl int64
			if err := json.Unmarshal(p.TTLMs, &ttl); err != nil {
				return Envelope{}, ShapeCorrupt
			}
			env.TTLMs = &ttl
		}
		if p.Data == nil {
			return Envelope{}, ShapeCorrupt
		}
		env.Data = p.Data
		return env, ShapeEnvelope
	case isPresent(p.TS):
		var ts float64
		if err := json.Unmarshal(p.TS, &ts); err != nil {
			return Envelope{}, ShapeLegacyTSString
		}
		return Envelope{}, ShapeLegacyTS
	default:
		return Envelope{}, ShapeBare
	}
}

func isPresent(raw json.RawMessage) bool {
	return raw != nil && !bytes.Equal(raw, []byte("null"))
}
