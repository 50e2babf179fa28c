// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

package imagefetch

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the number of entries held by a MemoryCache created
// without an explicit size.
const DefaultMemorySize = 100

// Cache stores the state of images by cache key.  Implementations must be
// safe for concurrent use, and once SetEntry returns every subsequent
// GetEntry for the key must observe the new entry (or its later eviction).
// Ready entries may be evicted, but an in-progress entry must be kept until
// it is replaced or removed; see InFlight.
type Cache interface {
	// GetEntry returns the entry for key, or nil if there is none.
	GetEntry(key string) *CacheEntry

	// SetEntry replaces the entry for key.  A nil entry removes the key.
	SetEntry(entry *CacheEntry, key string)
}

// DefaultCache is the Cache used by services created with a nil cache.
var DefaultCache Cache = NewMemoryCache(DefaultMemorySize)

// NopCache provides a no-op cache implementation that doesn't actually cache
// anything.  Services using it fetch every image on every request.
var NopCache = new(nopCache)

type nopCache struct{}

func (c nopCache) GetEntry(string) *CacheEntry  { return nil }
func (c nopCache) SetEntry(*CacheEntry, string) {}

// InFlight holds the in-progress entries of a Cache whose underlying store
// evicts or expires entries.  Entries held here are never evicted, so
// callers always find a fetch that is still running.  The zero value is
// ready to use.
type InFlight struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
}

// Get returns the in-progress entry for key, or nil.
func (f *InFlight) Get(key string) *CacheEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key]
}

// Add stores the in-progress entry for key.
func (f *InFlight) Add(key string, entry *CacheEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]*CacheEntry)
	}
	f.entries[key] = entry
}

// Remove removes key.
func (f *InFlight) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
}

// Len returns the number of fetches in progress.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// MemoryCache is an in-memory Cache holding a bounded number of ready
// entries, evicting the least recently used when full.  Entries for fetches
// in progress are held apart and never evicted.
type MemoryCache struct {
	lru      *lru.Cache[string, *CacheEntry]
	inflight InFlight
}

// NewMemoryCache returns a MemoryCache holding up to size entries.  If size
// is not positive, DefaultMemorySize is used.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultMemorySize
	}
	l, _ := lru.New[string, *CacheEntry](size) // only fails for size <= 0
	return &MemoryCache{lru: l}
}

// GetEntry implements Cache.
func (c *MemoryCache) GetEntry(key string) *CacheEntry {
	if e := c.inflight.Get(key); e != nil {
		return e
	}
	e, _ := c.lru.Get(key)
	return e
}

// SetEntry implements Cache.
func (c *MemoryCache) SetEntry(entry *CacheEntry, key string) {
	if entry != nil && entry.Kind() == EntryInProgress {
		c.inflight.Add(key, entry)
		c.lru.Remove(key)
		return
	}
	// store before unpinning, so readers never see the key absent
	if entry != nil {
		c.lru.Add(key, entry)
	} else {
		c.lru.Remove(key)
	}
	c.inflight.Remove(key)
}

// Len returns the number of cached entries, including fetches in progress.
func (c *MemoryCache) Len() int { return c.lru.Len() + c.inflight.Len() }

// Purge removes all ready entries.  Fetches in progress are kept.
func (c *MemoryCache) Purge() { c.lru.Purge() }
