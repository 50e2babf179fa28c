// Copyright 2013 The imageproxy authors.
// SPDX-License-Identifier: Apache-2.0

// Package ottercache provides an in-memory imagefetch.Cache with a bounded
// size and a time to live for every entry.
package ottercache

import (
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"willnorris.com/go/imagefetch"
)

// Cache is an imagefetch.Cache backed by otter.  Ready entries expire ttl
// after they were stored; storing an entry again restarts its ttl.  Entries
// for fetches in progress are held apart and neither evicted nor expired.
type Cache struct {
	cache    *otter.Cache[string, *imagefetch.CacheEntry]
	counter  *stats.Counter
	inflight imagefetch.InFlight
}

// New returns a new Cache holding at most maxSize entries, each for at most
// ttl.  A ttl of zero or less disables expiry.
func New(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = imagefetch.DefaultMemorySize
	}
	counter := stats.NewCounter()
	opts := &otter.Options[string, *imagefetch.CacheEntry]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
	}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryWriting[string, *imagefetch.CacheEntry](ttl)
	}
	return &Cache{
		cache:   otter.Must(opts),
		counter: counter,
	}
}

// GetEntry returns the entry stored for key, or nil.
func (c *Cache) GetEntry(key string) *imagefetch.CacheEntry {
	if e := c.inflight.Get(key); e != nil {
		return e
	}
	e, ok := c.cache.GetEntry(key)
	if !ok {
		return nil
	}
	return e.Value
}

// SetEntry stores entry for key, or removes key if entry is nil.
func (c *Cache) SetEntry(entry *imagefetch.CacheEntry, key string) {
	switch {
	case entry == nil:
		c.cache.Invalidate(key)
	case entry.Kind() == imagefetch.EntryInProgress:
		c.inflight.Add(key, entry)
		c.cache.Invalidate(key)
		return
	default:
		c.cache.Set(key, entry)
	}
	c.inflight.Remove(key)
}

// Stats returns a snapshot of the cache's hit and miss counts for ready
// entries.
func (c *Cache) Stats() stats.Stats {
	return c.counter.Snapshot()
}
