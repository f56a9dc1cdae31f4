// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package cache

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrQuotaExceeded is returned by a storage tier that has no room left.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrStorageClosed is returned after a tier has been closed.
	ErrStorageClosed = errors.New("storage closed")
)

// Storage is a plain string key/value store. The TTL cache layers expiry,
// envelopes and self-healing on top of it. Implementations must be safe
// for concurrent use and make each SetItem atomic per key.
type Storage interface {
	// GetItem returns the raw value and whether the key exists.
	GetItem(key string) (string, bool, error)

	// SetItem writes value under key, overwriting any previous value.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error

	// Keys enumerates every stored key once.
	Keys() ([]string, error)

	// Tier names the storage for metrics and logs ("session", "durable").
	Tier() string
}

// MemoryStorage is the session-scoped tier: it lives as long as the
// process and is bounded by an optional byte quota.
type MemoryStorage struct {
	mu         sync.RWMutex
	items      map[string]string
	usedBytes  int
	quotaBytes int
	closed     bool
}

// NewMemoryStorage creates a session tier. quotaBytes <= 0 disables the quota.
func NewMemoryStorage(quotaBytes int) *MemoryStorage {
	return &MemoryStorage{
		items:      make(map[string]string),
		quotaBytes: quotaBytes,
	}
}

// GetItem implements Storage.
func (m *MemoryStorage) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrStorageClosed
	}
	v, ok := m.items[key]
	return v, ok, nil
}

// SetItem implements Storage. The quota counts key and value bytes.
func (m *MemoryStorage) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}

	used := m.usedBytes
	if old, ok := m.items[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if m.quotaBytes > 0 && used > m.quotaBytes {
		return ErrQuotaExceeded
	}

	m.items[key] = value
	m.usedBytes = used
	return nil
}

// RemoveItem implements Storage.
func (m *MemoryStorage) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	if old, ok := m.items[key]; ok {
		m.usedBytes -= len(key) + len(old)
		delete(m.items, key)
	}
	return nil
}

// Keys implements Storage. Keys are returned sorted.
func (m *MemoryStorage) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Tier implements Storage.
func (m *MemoryStorage) Tier() string { return "session" }

// Close marks the tier unusable; later calls fail with ErrStorageClosed.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
	m.usedBytes = 0
	return nil
}

// keysWithPrefix filters keys by prefix.
func keysWithPrefix(keys []string, prefix string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
