// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import (
	"sync"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/metrics"
)

// cacheEntry is a node in the recency list.
type cacheEntry struct {
	key  geo.TileKey
	tile *CachedTile
	prev *cacheEntry
	next *cacheEntry
}

// TileCache is an eviction-capable store of decoded tiles keyed by tile
// coordinate.
//
// Eviction is least-recently-NEEDED: recency is refreshed by Get, Touch,
// and re-insertion, so a tile that scrolls back into view before eviction
// short-circuits scheduling and decode entirely. Evicted entries are
// returned to the caller, which owns downstream disposal (the cache only
// manages the index of liveness, not scene teardown).
//
// The cache uses a doubly-linked list with sentinel nodes for O(1)
// recency updates and a map for O(1) lookup. It is mutex-guarded so the
// stats endpoint may read concurrently with the single writing engine
// goroutine.
type TileCache struct {
	mu sync.RWMutex

	capacity int
	items    map[geo.TileKey]*cacheEntry

	// head.next is most recently needed, tail.prev least recently needed.
	head *cacheEntry
	tail *cacheEntry

	// monotonic counters
	tilesLoaded  int64
	tilesEvicted int64
}

// DefaultMaxCachedTiles bounds the cache when no capacity is configured.
const DefaultMaxCachedTiles = 50

// NewTileCache creates a cache holding at most capacity decoded tiles.
func NewTileCache(capacity int) *TileCache {
	if capacity <= 0 {
		capacity = DefaultMaxCachedTiles
	}
	c := &TileCache{
		capacity: capacity,
		items:    make(map[geo.TileKey]*cacheEntry, capacity),
		head:     &cacheEntry{},
		tail:     &cacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached tile and refreshes its last-needed position.
func (c *TileCache) Get(key geo.TileKey) (*CachedTile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		metrics.TileCacheMisses.Inc()
		return nil, false
	}
	c.moveToFront(entry)
	metrics.TileCacheHits.Inc()
	return entry.tile, true
}

// Contains reports whether the key is cached without refreshing recency.
func (c *TileCache) Contains(key geo.TileKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[key]
	return ok
}

// Touch refreshes the last-needed position of a cached key. Re-requesting an
// already-cached tile is a no-op for the scheduler but still lands here so
// LRU ordering tracks need, not insertion.
func (c *TileCache) Touch(key geo.TileKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return false
	}
	c.moveToFront(entry)
	return true
}

// AddToCache inserts a decoded tile and returns any entries evicted to stay
// within capacity. Insertion of an already-cached key replaces the value in
// place and refreshes recency without evicting.
func (c *TileCache) AddToCache(key geo.TileKey, tile *CachedTile) []*CachedTile {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		entry.tile = tile
		c.moveToFront(entry)
		return nil
	}

	entry := &cacheEntry{key: key, tile: tile}
	c.addToFront(entry)
	c.items[key] = entry
	c.tilesLoaded++
	metrics.TilesLoaded.Inc()

	var evicted []*CachedTile
	for len(c.items) > c.capacity {
		oldest := c.tail.prev
		if oldest == c.head {
			break
		}
		c.removeEntry(oldest)
		c.tilesEvicted++
		metrics.TilesEvicted.WithLabelValues("capacity").Inc()
		evicted = append(evicted, oldest.tile)
	}

	metrics.TileCacheSize.Set(float64(len(c.items)))
	return evicted
}

// PruneToKeys removes every cached entry not in required, regardless of
// capacity, and returns them for disposal. This is a viewport-relevance
// prune, distinct from capacity eviction: after a large viewport jump it
// stops distant tiles being held just because capacity was never hit.
// Entries in required stay cached.
func (c *TileCache) PruneToKeys(required map[geo.TileKey]struct{}) []*CachedTile {
	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted []*CachedTile
	for key, entry := range c.items {
		if _, keep := required[key]; keep {
			continue
		}
		c.removeEntry(entry)
		c.tilesEvicted++
		metrics.TilesEvicted.WithLabelValues("prune").Inc()
		evicted = append(evicted, entry.tile)
	}

	metrics.TileCacheSize.Set(float64(len(c.items)))
	return evicted
}

// ClearAll empties the cache unconditionally and returns every entry for
// disposal. Used on visibility-off and teardown.
func (c *TileCache) ClearAll() []*CachedTile {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make([]*CachedTile, 0, len(c.items))
	for _, entry := range c.items {
		all = append(all, entry.tile)
		c.tilesEvicted++
		metrics.TilesEvicted.WithLabelValues("clear").Inc()
	}

	c.items = make(map[geo.TileKey]*cacheEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head

	metrics.TileCacheSize.Set(0)
	return all
}

// Len returns the current number of cached tiles.
func (c *TileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Counters returns the monotonic loaded/evicted counters.
func (c *TileCache) Counters() (loaded, evicted int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tilesLoaded, c.tilesEvicted
}

// Keys returns the cached keys in no particular order.
func (c *TileCache) Keys() []geo.TileKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]geo.TileKey, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Internal list operations (must be called with lock held)

func (c *TileCache) addToFront(entry *cacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *TileCache) moveToFront(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *TileCache) removeEntry(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}
