// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// EntityFilter is a per-entity-kind bloom filter: Add records that an ID
// of a given kind exists, MightExist answers "maybe, or definitely not",
// and FilterPossible narrows a candidate ID list down to those that might
// exist, skipping a round-trip to storage for the rest. A negative answer
// is always correct; positives may be false.
type EntityFilter struct {
	mu          sync.RWMutex
	falsePosPct float64
	expected    int
	byKind      map[string]*bitset
}

type bitset struct {
	bits    []uint64
	nBits   uint64
	nHashes int
}

// NewEntityFilter builds a filter whose per-kind bitsets are sized to
// hold expectedPerKind items at the requested false-positive rate.
func NewEntityFilter(expectedPerKind int, falsePositiveRate float64) *EntityFilter {
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	if expectedPerKind <= 0 {
		expectedPerKind = 1024
	}
	return &EntityFilter{
		falsePosPct: falsePositiveRate,
		expected:    expectedPerKind,
		byKind:      make(map[string]*bitset),
	}
}

func newBitset(n int, fpRate float64) *bitset {
	m := optimalBits(n, fpRate)
	k := optimalHashes(m, n)
	return &bitset{bits: make([]uint64, (m+63)/64), nBits: uint64(m), nHashes: k}
}

func optimalBits(n int, p float64) int {
	if n <= 0 {
		n = 1
	}
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return int(math.Ceil(m))
}

func optimalHashes(m, n int) int {
	if n <= 0 {
		n = 1
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return k
}

func (b *bitset) positions(id string) []uint64 {
	h1 := xxhash.Sum64String(id)
	h2 := xxhash.Sum64String(id + "\x00salt")
	out := make([]uint64, b.nHashes)
	for i := 0; i < b.nHashes; i++ {
		out[i] = (h1 + uint64(i)*h2) % b.nBits
	}
	return out
}

func (b *bitset) set(pos uint64) {
	b.bits[pos/64] |= 1 << (pos % 64)
}

func (b *bitset) isSet(pos uint64) bool {
	return b.bits[pos/64]&(1<<(pos%64)) != 0
}

// Add records that id (of the given kind) exists.
func (f *EntityFilter) Add(id, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bs, ok := f.byKind[kind]
	if !ok {
		bs = newBitset(f.expected, f.falsePosPct)
		f.byKind[kind] = bs
	}
	for _, p := range bs.positions(id) {
		bs.set(p)
	}
}

// MightExist reports whether id of the given kind might have been added.
// false is definitive; true may be a false positive.
func (f *EntityFilter) MightExist(id, kind string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bs, ok := f.byKind[kind]
	if !ok {
		return false
	}
	for _, p := range bs.positions(id) {
		if !bs.isSet(p) {
			return false
		}
	}
	return true
}

// FilterPossible narrows ids down to those that might exist for kind,
// dropping every ID the filter can definitively rule out.
func (f *EntityFilter) FilterPossible(ids []string, kind string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if f.MightExist(id, kind) {
			out = append(out, id)
		}
	}
	return out
}
