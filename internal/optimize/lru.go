// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package optimize implements the composed optimization façade of spec
// §4.9: an LRU cache layer, a bloom-filter entity existence check, a heat
// tracker feeding an adaptive-index recommender, a priority batch writer,
// a write-behind ledger wrapper, and performance/cost tracking.
package optimize

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// EvictCallback is invoked (outside any internal lock) whenever an entry
// leaves the cache, whether by TTL expiry, explicit Delete, or LRU
// eviction on a Set that exceeds capacity.
type EvictCallback[K comparable, V any] func(key K, value V)

// Cache is an LRU cache with a size bound, an optional approximate memory
// budget, and a per-entry TTL. It wraps hashicorp/golang-lru/v2's
// expirable.LRU for the O(1) get/set/delete/TTL mechanics and layers the
// spec's memory-budget accounting and eviction callback on top.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	backing    *lru.LRU[K, entry[V]]
	onEvict    EvictCallback[K, V]
	sizeOf     func(V) int
	memBudget  int
	memUsed    int
}

type entry[V any] struct {
	value V
	size  int
}

// NewCache builds a Cache holding up to maxEntries items, each expiring
// ttl after insertion (ttl<=0 disables expiry). memBudget<=0 disables
// the memory-budget check; sizeOf may be nil in that case.
func NewCache[K comparable, V any](maxEntries int, ttl time.Duration, memBudget int, sizeOf func(V) int) *Cache[K, V] {
	c := &Cache[K, V]{memBudget: memBudget, sizeOf: sizeOf}
	c.backing = lru.NewLRU[K, entry[V]](maxEntries, func(key K, e entry[V]) {
		c.mu.Lock()
		c.memUsed -= e.size
		cb := c.onEvict
		c.mu.Unlock()
		if cb != nil {
			cb(key, e.value)
		}
	}, ttl)
	return c
}

// OnEvict registers the callback invoked on every eviction (TTL, Delete,
// or capacity/memory pressure).
func (c *Cache[K, V]) OnEvict(cb EvictCallback[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = cb
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.backing.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set inserts or replaces key's value. If a memory budget is configured
// and inserting value would exceed it, the oldest entries are evicted
// (via the backing LRU's normal eviction path) until there is room, or
// the new value alone exceeds the budget in which case it is not cached.
func (c *Cache[K, V]) Set(key K, value V) {
	size := 0
	if c.sizeOf != nil {
		size = c.sizeOf(value)
	}

	c.mu.Lock()
	if old, ok := c.backing.Peek(key); ok {
		c.memUsed -= old.size
	}
	if c.memBudget > 0 && size > c.memBudget {
		c.mu.Unlock()
		return
	}
	c.memUsed += size
	overBudget := c.memBudget > 0 && c.memUsed > c.memBudget
	c.mu.Unlock()

	c.backing.Add(key, entry[V]{value: value, size: size})

	for overBudget {
		c.mu.Lock()
		oldestKey, _, ok := c.backing.GetOldest()
		c.mu.Unlock()
		if !ok {
			break
		}
		c.backing.Remove(oldestKey)
		c.mu.Lock()
		overBudget = c.memBudget > 0 && c.memUsed > c.memBudget
		c.mu.Unlock()
	}
}

// Delete removes key, invoking the eviction callback if present.
func (c *Cache[K, V]) Delete(key K) {
	c.backing.Remove(key)
}

// Len reports the number of live entries.
func (c *Cache[K, V]) Len() int {
	return c.backing.Len()
}

// Prune removes every expired entry immediately rather than waiting for
// it to be touched; the backing expirable.LRU already self-prunes lazily
// on access, so Prune forces that pass across every key.
func (c *Cache[K, V]) Prune() int {
	keys := c.backing.Keys()
	removed := 0
	for _, k := range keys {
		if _, ok := c.backing.Get(k); !ok {
			removed++
		}
	}
	return removed
}
