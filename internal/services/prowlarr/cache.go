// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

// evictionTTL bounds how long an entry may linger after its last write, whatever the read-time TTL is.
const evictionTTL = 7 * 24 * time.Hour

type cacheEntry struct {
	cachedAt time.Time
	sources  []Source
}

// CacheStats summarises the cache for the API.
type CacheStats struct {
	Entries   int       `json:"entries"`
	Sources   int       `json:"sources"`
	FlushedAt time.Time `json:"flushedAt,omitempty"`
}

// SourceCache maps query strings to their last normalized result list.
// Freshness is judged at read time against the caller's TTL.
type SourceCache struct {
	mu        sync.RWMutex
	entries   *ttlcache.Cache[string, cacheEntry]
	keys      map[string]struct{}
	flushedAt time.Time
	now       func() time.Time
}

func NewSourceCache() *SourceCache {
	return &SourceCache{
		entries: newEntryCache(),
		keys:    make(map[string]struct{}),
		now:     time.Now,
	}
}

func newEntryCache() *ttlcache.Cache[string, cacheEntry] {
	return ttlcache.New(ttlcache.Options[string, cacheEntry]{}.SetDefaultTTL(evictionTTL))
}

// Get returns a copy of the cached list when it was written less than ttl ago.
func (c *SourceCache) Get(ttl time.Duration, key string) ([]Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.cachedAt) >= ttl {
		return nil, false
	}
	return CloneSources(entry.sources), true
}

// Set replaces the entry for key, stamping it with the current time.
func (c *SourceCache) Set(key string, sources []Source) {
	stored := CloneSources(sources)
	if stored == nil {
		stored = []Source{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Set(key, cacheEntry{cachedAt: c.now(), sources: stored}, ttlcache.DefaultTTL)
	c.keys[key] = struct{}{}
}

// Flush drops every entry. Readers blocked on the lock observe the empty generation.
func (c *SourceCache) Flush() {
	c.mu.Lock()
	old := c.entries
	c.entries = newEntryCache()
	c.keys = make(map[string]struct{})
	c.flushedAt = c.now()
	c.mu.Unlock()

	old.Close()
}

// Len counts keys that have not been evicted yet.
func (c *SourceCache) Len() int {
	return c.Stats().Entries
}

func (c *SourceCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{FlushedAt: c.flushedAt}
	for key := range c.keys {
		entry, ok := c.entries.Get(key)
		if !ok {
			delete(c.keys, key)
			continue
		}
		stats.Entries++
		stats.Sources += len(entry.sources)
	}
	return stats
}

func (c *SourceCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Close()
}
