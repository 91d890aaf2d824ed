// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ModelCacheEntry is a cached model response plus its token/cost
// accounting, so a cache hit can still be attributed correctly.
type ModelCacheEntry struct {
	Response     string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// ModelResponseCache is an LRU keyed by hash of (model_id, prompt,
// options), supporting bulk invalidation by model_id.
type ModelResponseCache struct {
	mu          sync.Mutex
	cache       *Cache[uint64, ModelCacheEntry]
	keysByModel map[string]map[uint64]struct{}
}

// NewModelResponseCache builds a ModelResponseCache with the given
// capacity and TTL.
func NewModelResponseCache(maxEntries int, ttl time.Duration) *ModelResponseCache {
	mc := &ModelResponseCache{keysByModel: make(map[string]map[uint64]struct{})}
	mc.cache = NewCache[uint64, ModelCacheEntry](maxEntries, ttl, 0, nil)
	return mc
}

// ModelCacheKey derives the cache key for a (model, prompt, options)
// triple.
func ModelCacheKey(model, prompt string, options map[string]any) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(model)
	_, _ = h.WriteString(prompt)
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(h, "%s=%v;", k, options[k])
	}
	return h.Sum64()
}

// Get returns the cached response for (model, prompt, options).
func (mc *ModelResponseCache) Get(model, prompt string, options map[string]any) (ModelCacheEntry, bool) {
	return mc.cache.Get(ModelCacheKey(model, prompt, options))
}

// Put caches a response, indexed under model for later bulk eviction.
func (mc *ModelResponseCache) Put(model, prompt string, options map[string]any, entry ModelCacheEntry) {
	key := ModelCacheKey(model, prompt, options)
	mc.mu.Lock()
	if mc.keysByModel[model] == nil {
		mc.keysByModel[model] = make(map[uint64]struct{})
	}
	mc.keysByModel[model][key] = struct{}{}
	mc.mu.Unlock()
	mc.cache.Set(key, entry)
}

// InvalidateModel evicts every cached response for model.
func (mc *ModelResponseCache) InvalidateModel(model string) int {
	mc.mu.Lock()
	keys := mc.keysByModel[model]
	delete(mc.keysByModel, model)
	mc.mu.Unlock()

	for k := range keys {
		mc.cache.Delete(k)
	}
	return len(keys)
}
