// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// QueryCacheEntry is a cached query result plus the dependency tags it
// was computed from, for invalidation.
type QueryCacheEntry struct {
	Result       any
	Dependencies []string
}

// QueryCache is an LRU keyed by a content-hash of (query, params),
// supporting pattern-based and dependency-based bulk invalidation in
// addition to plain key eviction.
type QueryCache struct {
	mu    sync.Mutex
	cache *Cache[uint64, QueryCacheEntry]
	// depIndex maps a dependency tag to every cache key that declared it.
	depIndex map[string]map[uint64]struct{}
	// keyQuery remembers the literal query string for a key, for
	// pattern-based invalidation.
	keyQuery map[uint64]string
}

// NewQueryCache builds a QueryCache with the given capacity and TTL.
func NewQueryCache(maxEntries int, ttl time.Duration) *QueryCache {
	qc := &QueryCache{
		depIndex: make(map[string]map[uint64]struct{}),
		keyQuery: make(map[uint64]string),
	}
	qc.cache = NewCache[uint64, QueryCacheEntry](maxEntries, ttl, 0, nil)
	qc.cache.OnEvict(func(key uint64, _ QueryCacheEntry) {
		qc.mu.Lock()
		defer qc.mu.Unlock()
		qc.forgetLocked(key)
	})
	return qc
}

// HashKey derives the cache key for a (query, params) pair. params is
// rendered deterministically by sorting its keys before hashing.
func HashKey(query string, params map[string]any) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(query)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = fmt.Fprintf(h, "=%v;", params[k])
	}
	return h.Sum64()
}

// Get returns the cached result for (query, params), if present.
func (qc *QueryCache) Get(query string, params map[string]any) (any, bool) {
	key := HashKey(query, params)
	e, ok := qc.cache.Get(key)
	if !ok {
		return nil, false
	}
	return e.Result, true
}

// Put inserts result under the key for (query, params), indexing it by
// the given dependency tags for later bulk invalidation.
func (qc *QueryCache) Put(query string, params map[string]any, result any, dependencies []string) {
	key := HashKey(query, params)

	qc.mu.Lock()
	qc.forgetLocked(key)
	qc.keyQuery[key] = query
	for _, dep := range dependencies {
		if qc.depIndex[dep] == nil {
			qc.depIndex[dep] = make(map[uint64]struct{})
		}
		qc.depIndex[dep][key] = struct{}{}
	}
	qc.mu.Unlock()

	qc.cache.Set(key, QueryCacheEntry{Result: result, Dependencies: dependencies})
}

func (qc *QueryCache) forgetLocked(key uint64) {
	delete(qc.keyQuery, key)
	for _, keys := range qc.depIndex {
		delete(keys, key)
	}
}

// InvalidateDependency evicts every cached entry that declared dep as a
// dependency.
func (qc *QueryCache) InvalidateDependency(dep string) int {
	qc.mu.Lock()
	keys := qc.depIndex[dep]
	targets := make([]uint64, 0, len(keys))
	for k := range keys {
		targets = append(targets, k)
	}
	qc.mu.Unlock()

	for _, k := range targets {
		qc.cache.Delete(k)
	}
	return len(targets)
}

// InvalidatePattern evicts every cached entry whose original query string
// matches the given regular expression.
func (qc *QueryCache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("compile invalidation pattern: %w", err)
	}
	qc.mu.Lock()
	var targets []uint64
	for key, query := range qc.keyQuery {
		if re.MatchString(query) {
			targets = append(targets, key)
		}
	}
	qc.mu.Unlock()

	for _, k := range targets {
		qc.cache.Delete(k)
	}
	return len(targets), nil
}
