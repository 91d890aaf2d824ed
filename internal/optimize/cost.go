// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"sync"
	"time"
)

// UsageRecord is one recorded model invocation's cost and resource use.
type UsageRecord struct {
	Operation    string
	Model        string
	InputTokens  int
	OutputTokens int
	ComputeTime  time.Duration
	CostUSD      float64
	Timestamp    time.Time
}

// CostSummary rolls up usage over a dimension (operation, model, or time
// bucket).
type CostSummary struct {
	Key          string
	Count        int
	InputTokens  int
	OutputTokens int
	ComputeTime  time.Duration
	CostUSD      float64
}

// CostAttribution accumulates UsageRecords and produces rolled-up
// summaries by operation, by model, and by time range.
type CostAttribution struct {
	mu      sync.Mutex
	records []UsageRecord
	now     func() time.Time
}

// NewCostAttribution returns an empty tracker.
func NewCostAttribution() *CostAttribution {
	return &CostAttribution{now: time.Now}
}

// Record appends a usage record, stamping it with the current time if
// Timestamp is zero.
func (c *CostAttribution) Record(r UsageRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// ByOperation rolls up every recorded usage grouped by Operation.
func (c *CostAttribution) ByOperation() []CostSummary {
	return c.rollup(func(r UsageRecord) string { return r.Operation })
}

// ByModel rolls up every recorded usage grouped by Model.
func (c *CostAttribution) ByModel() []CostSummary {
	return c.rollup(func(r UsageRecord) string { return r.Model })
}

// InRange rolls up usage within [since, until) grouped by Operation.
func (c *CostAttribution) InRange(since, until time.Time) []CostSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	agg := make(map[string]*CostSummary)
	for _, r := range c.records {
		if r.Timestamp.Before(since) || !r.Timestamp.Before(until) {
			continue
		}
		addUsage(agg, r.Operation, r)
	}
	return flattenSummaries(agg)
}

func (c *CostAttribution) rollup(keyOf func(UsageRecord) string) []CostSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	agg := make(map[string]*CostSummary)
	for _, r := range c.records {
		addUsage(agg, keyOf(r), r)
	}
	return flattenSummaries(agg)
}

func addUsage(agg map[string]*CostSummary, key string, r UsageRecord) {
	s, ok := agg[key]
	if !ok {
		s = &CostSummary{Key: key}
		agg[key] = s
	}
	s.Count++
	s.InputTokens += r.InputTokens
	s.OutputTokens += r.OutputTokens
	s.ComputeTime += r.ComputeTime
	s.CostUSD += r.CostUSD
}

func flattenSummaries(agg map[string]*CostSummary) []CostSummary {
	out := make([]CostSummary, 0, len(agg))
	for _, s := range agg {
		out = append(out, *s)
	}
	return out
}
