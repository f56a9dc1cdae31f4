// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

/*
Package cache provides a TTL-aware key/value cache over pluggable storage tiers.

# Overview

Two tiers are provided:
  - durable: BadgerDB, survives restarts (BadgerStorage)
  - session: in-process map with a byte quota (MemoryStorage)

A Cache wraps one Storage. Every value is written as a JSON envelope:

	{"savedAt": 1735689600000, "ttlMs": 2592000000, "data": {...}}

Reads compare savedAt against the smaller of the caller's TTL and the stored
ttlMs. Stale entries are removed and count as a miss.

# Self-Healing

Entries in an older or unknown format (a "ts" envelope, bare JSON, or bytes
that do not parse) are deleted on read and counted as heals. A read never
returns a value it cannot decode.

# Failure Handling

Storage errors never reach the caller. Set reports false, Get reports a
miss, and the failure is logged and counted. A nil Storage turns every call
into a no-op.

# Keys

Keys are built with MakeKey:

	cache.MakeKey(cache.KeyParts{
	    Namespace: "geocode",
	    Version:   1,
	    OwnerID:   "user-42",
	    Parts:     []string{"123 main st erie pa"},
	})
	// geocode:v1:user-42:123 main st erie pa

OwnerPrefix returns the prefix covering one owner's entries, which
ClearByPrefix removes on sign-out.

# Usage Example

	store, err := cache.OpenBadgerStorage(cache.BadgerOptions{Path: "/data/cache"})
	if err != nil {
	    return err
	}
	defer store.Close()

	c := cache.New(store)
	c.Set(key, point, cache.SetOptions{TTL: 30 * 24 * time.Hour})

	var p geo.Point
	if c.Get(key, cache.GetOptions{TTL: 30 * 24 * time.Hour}, &p) {
	    // fresh hit
	}

# Thread Safety

Cache is safe for concurrent use. Both storage tiers are safe for
concurrent use.
*/
package cache
