// CrossWatch - Cross-Provider Media Library Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crosswatch

// Package resolvecache persists external-id resolution results in BadgerDB.
//
// Adapters that translate foreign IDs into their internal ID space (TMDb
// /find lookups, Tautulli get_metadata enrichment) cache the answers here
// so repeated syncs do not re-issue the same vendor calls. Keys follow the
// "<provider>:<feature>:<source>:<value>|<want>" convention; entries carry
// an optional TTL.
package resolvecache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/crosswatch/internal/metrics"
)

// Cache is a small disk-backed resolution cache shared by adapter
// instances. Safe for concurrent use.
type Cache struct {
	db       *badger.DB
	provider string
}

// Open opens (or creates) the cache at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open resolve cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Scoped returns a view of the cache labeled for one provider; the label
// only affects metrics and key prefixes.
func (c *Cache) Scoped(provider string) *Cache {
	if c == nil {
		return nil
	}
	return &Cache{db: c.db, provider: provider}
}

func (c *Cache) key(k string) []byte {
	if c.provider == "" {
		return []byte(k)
	}
	return []byte(c.provider + ":" + k)
}

// Get unmarshals the cached value for key into out. Returns false on miss.
// A nil Cache always misses, so adapters run uncached when the cache could
// not be opened.
func (c *Cache) Get(key string, out any) bool {
	if c == nil || c.db == nil {
		return false
	}

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) || err != nil {
		metrics.ResolveCacheHits.WithLabelValues(c.provider, "miss").Inc()
		return false
	}
	metrics.ResolveCacheHits.WithLabelValues(c.provider, "hit").Inc()
	return true
}

// Put stores value under key with an optional TTL (0 = no expiry).
func (c *Cache) Put(key string, value any, ttl time.Duration) error {
	if c == nil || c.db == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(c.key(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a cached entry; missing keys are not an error.
func (c *Cache) Delete(key string) error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(c.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
