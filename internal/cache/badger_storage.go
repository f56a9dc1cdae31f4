// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package cache

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage is the longer-lived tier, backed by BadgerDB so that
// geocoding results survive process restarts.
type BadgerStorage struct {
	db     *badger.DB
	prefix []byte
	owned  bool
}

// BadgerOptions configures OpenBadgerStorage.
type BadgerOptions struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the database in RAM (tests, ephemeral deployments).
	InMemory bool
}

// OpenBadgerStorage opens a BadgerDB owned by the returned storage;
// Close releases it.
func OpenBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache storage: %w", err)
	}
	s := NewBadgerStorage(db)
	s.owned = true
	return s, nil
}

// NewBadgerStorage wraps an existing DB. Keys are stored under "kv:" so the
// database can be shared with other users of the same DB.
func NewBadgerStorage(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db, prefix: []byte("kv:")}
}

func (s *BadgerStorage) dbKey(key string) []byte {
	k := make([]byte, 0, len(s.prefix)+len(key))
	k = append(k, s.prefix...)
	return append(k, key...)
}

// GetItem implements Storage.
func (s *BadgerStorage) GetItem(key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.dbKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// SetItem implements Storage.
func (s *BadgerStorage) SetItem(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.dbKey(key), []byte(value))
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return ErrQuotaExceeded
	}
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// RemoveItem implements Storage.
func (s *BadgerStorage) RemoveItem(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.dbKey(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys implements Storage.
func (s *BadgerStorage) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			k := it.Item().Key()
			keys = append(keys, string(k[len(s.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Tier implements Storage.
func (s *BadgerStorage) Tier() string { return "durable" }

// Close closes the DB when this storage opened it.
func (s *BadgerStorage) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
