// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package cache

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// Cache is a TTL-aware key/value cache layered over a Storage tier.
//
// Every entry is written as an Envelope carrying its write time and
// optional TTL. Expiry is lazy: an entry is only found to be stale, and
// deleted, when it is read. Reads tolerate legacy and corrupt payloads by
// deleting them and reporting a miss, so a bad entry cannot fail twice.
//
// A Cache is an explicit instance: create one per storage tier at process
// start, pass it to the components that need it, and clear the owner's
// prefix on sign-out. A nil Storage is allowed and makes every operation
// a miss or no-op.
//
// Thread Safety: safe for concurrent use when the Storage is.
type Cache struct {
	storage Storage
	tier    string
	now     func() time.Time
	stats   counters
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	expirations   atomic.Int64
	heals         atomic.Int64
	writeFailures atomic.Int64
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Expirations   int64 `json:"expirations"`
	Heals         int64 `json:"heals"`
	WriteFailures int64 `json:"write_failures"`
}

// HitRate returns hits / (hits + misses) as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// SetOptions controls a write.
type SetOptions struct {
	// TTL is stored with the entry. Zero means the entry never expires on
	// its own (a reader may still impose a TTL).
	TTL time.Duration
}

// GetOptions controls a read.
type GetOptions struct {
	// TTL, when non-zero, is the reader's own freshness bound. The
	// stricter of this and the stored TTL applies.
	TTL time.Duration
}

// New creates a cache over storage. storage may be nil.
func New(storage Storage) *Cache {
	tier := "none"
	if storage != nil {
		tier = storage.Tier()
	}
	return &Cache{
		storage: storage,
		tier:    tier,
		now:     time.Now,
	}
}

// Tier returns the underlying storage tier name.
func (c *Cache) Tier() string {
	return c.tier
}

// Set serializes data into an envelope and writes it under key.
//
// Set never panics and never returns an error: serialization failures,
// quota errors and missing storage are logged at debug level, counted,
// and reported as false.
//
// Example:
//
//	ok := c.Set(key, point, cache.SetOptions{TTL: 30 * 24 * time.Hour})
func (c *Cache) Set(key string, data any, opts SetOptions) bool {
	if c.storage == nil {
		return false
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.writeFailed(key, err)
		return false
	}

	env := Envelope{
		SavedAt: c.now().UnixMilli(),
		Data:    raw,
	}
	if opts.TTL > 0 {
		// ttlMs 0 reads as "no limit", so a positive TTL keeps at least 1ms.
		ms := max(opts.TTL.Milliseconds(), 1)
		env.TTLMs = &ms
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		c.writeFailed(key, err)
		return false
	}

	if err := c.storage.SetItem(key, string(encoded)); err != nil {
		c.writeFailed(key, err)
		return false
	}
	return true
}

func (c *Cache) writeFailed(key string, err error) {
	c.stats.writeFailures.Add(1)
	metrics.CacheWriteFailures.WithLabelValues(c.tier).Inc()
	logging.Debug().Err(err).Str("tier", c.tier).Str("key", key).Msg("Cache write failed")
}

// Get reads key into out and reports whether a fresh entry was found.
//
// Behavior:
//   - Missing key, missing storage or storage error: false
//   - Legacy or corrupt payload: entry deleted, false
//   - Older than the effective TTL: entry deleted, false
//   - Data that does not decode into out: entry deleted, false
//
// The effective TTL is the smaller of opts.TTL and the stored TTL, when
// either is set.
func (c *Cache) Get(key string, opts GetOptions, out any) bool {
	if c.storage == nil {
		c.miss()
		return false
	}

	raw, ok, err := c.storage.GetItem(key)
	if err != nil {
		logging.Debug().Err(err).Str("tier", c.tier).Str("key", key).Msg("Cache read failed")
		c.miss()
		return false
	}
	if !ok {
		c.miss()
		return false
	}

	env, shape := ParsePayload(raw)
	if !shape.Readable() {
		c.heal(key, shape)
		return false
	}

	if ttl, limited := effectiveTTL(opts.TTL, env.TTLMs); limited {
		age := c.now().UnixMilli() - env.SavedAt
		if age > ttl.Milliseconds() {
			c.remove(key)
			c.stats.expirations.Add(1)
			metrics.CacheExpirations.WithLabelValues(c.tier).Inc()
			c.miss()
			return false
		}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.heal(key, ShapeCorrupt)
			return false
		}
	}

	c.stats.hits.Add(1)
	metrics.CacheHits.WithLabelValues(c.tier).Inc()
	return true
}

func effectiveTTL(caller time.Duration, storedMs *int64) (time.Duration, bool) {
	var stored time.Duration
	if storedMs != nil && *storedMs > 0 {
		stored = time.Duration(*storedMs) * time.Millisecond
	}
	switch {
	case caller > 0 && stored > 0:
		return min(caller, stored), true
	case caller > 0:
		return caller, true
	case stored > 0:
		return stored, true
	default:
		return 0, false
	}
}

func (c *Cache) heal(key string, shape PayloadShape) {
	c.remove(key)
	c.stats.heals.Add(1)
	metrics.CacheHeals.WithLabelValues(c.tier, shape.String()).Inc()
	logging.Debug().Str("tier", c.tier).Str("key", key).Str("shape", shape.String()).Msg("Removed unreadable cache entry")
	c.miss()
}

func (c *Cache) miss() {
	c.stats.misses.Add(1)
	metrics.CacheMisses.WithLabelValues(c.tier).Inc()
}

func (c *Cache) remove(key string) {
	if err := c.storage.RemoveItem(key); err != nil {
		logging.Debug().Err(err).Str("tier", c.tier).Str("key", key).Msg("Cache remove failed")
	}
}

// Remove deletes key. Missing keys and missing storage are no-ops.
func (c *Cache) Remove(key string) {
	if c.storage == nil {
		return
	}
	c.remove(key)
}

// ClearByPrefix enumerates the stored keys once and removes every key
// starting with prefix. It returns the number of keys removed.
func (c *Cache) ClearByPrefix(prefix string) int {
	if c.storage == nil {
		return 0
	}
	keys, err := c.storage.Keys()
	if err != nil {
		logging.Debug().Err(err).Str("tier", c.tier).Msg("Cache key enumeration failed")
		return 0
	}

	removed := 0
	for _, k := range keysWithPrefix(keys, prefix) {
		if err := c.storage.RemoveItem(k); err != nil {
			logging.Debug().Err(err).Str("tier", c.tier).Str("key", k).Msg("Cache remove failed")
			continue
		}
		removed++
	}
	return removed
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		Expirations:   c.stats.expirations.Load(),
		Heals:         c.stats.heals.Load(),
		WriteFailures: c.stats.writeFailures.Load(),
	}
}

// KeyParts are the components of a cache key.
type KeyParts struct {
	Namespace string
	Version   int
	OwnerID   string
	Parts     []string
}

// AnonymousOwner stands in for a missing owner id.
const AnonymousOwner = "anon"

// MakeKey builds "namespace:v<version>:<owner>:<part>:<part>...".
//
// Bumping Version changes every key in the namespace, so entries written
// under an older schema are simply never read again.
//
// Example:
//
//	cache.MakeKey(cache.KeyParts{Namespace: "geocode", Version: 1, Parts: []string{"123 main st"}})
//	// "geocode:v1:anon:123 main st"
func MakeKey(k KeyParts) string {
	owner := strings.TrimSpace(k.OwnerID)
	if owner == "" {
		owner = AnonymousOwner
	}

	var b strings.Builder
	b.WriteString(k.Namespace)
	b.WriteString(":v")
	b.WriteString(strconv.Itoa(k.Version))
	b.WriteByte(':')
	b.WriteString(owner)
	for _, p := range k.Parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// OwnerPrefix returns the key prefix covering every entry of one owner in
// a namespace and version, for sign-out eviction.
func OwnerPrefix(namespace string, version int, ownerID string) string {
	return MakeKey(KeyParts{Namespace: namespace, Version: version, OwnerID: ownerID}) + ":"
}
