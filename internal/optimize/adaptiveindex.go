// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"container/heap"
	"sync"
)

// IndexAction is a recommended maintenance action for a storage-level
// index, derived from heat data.
type IndexAction string

const (
	ActionCreate   IndexAction = "create"
	ActionRemove   IndexAction = "remove"
	ActionOptimize IndexAction = "optimize"
)

// Recommendation pairs a target (a relation or entity-kind name) with the
// action the adaptive index suggests taking on it.
type Recommendation struct {
	Target string
	Action IndexAction
	Reason string
}

// AdaptiveIndex consumes a HeatTracker's data to recommend index
// maintenance and to answer reindex-priority questions for the batch
// writer / similarity layer.
type AdaptiveIndex struct {
	mu       sync.Mutex
	heat     *HeatTracker
	priority priorityQueue
	index    map[string]*pqItem // target -> its heap item, for updates
}

// NewAdaptiveIndex builds an AdaptiveIndex layered on an existing
// HeatTracker.
func NewAdaptiveIndex(heat *HeatTracker) *AdaptiveIndex {
	return &AdaptiveIndex{heat: heat, index: make(map[string]*pqItem)}
}

// Recommend inspects target's heat/trend and suggests an action:
// ActionCreate for a Rising-trend Hot target without a prioritized entry
// yet, ActionRemove for a Cold target with a Falling trend, ActionOptimize
// otherwise for Hot targets, or no recommendation (ok=false) for a Warm,
// stable target.
func (a *AdaptiveIndex) Recommend(target string) (Recommendation, bool) {
	temp := a.heat.Classify(target)
	trend := a.heat.AccessTrend(target)
	a.mu.Lock()
	_, queued := a.index[target]
	a.mu.Unlock()
	switch {
	case temp == Hot && trend == Rising && !queued:
		return Recommendation{Target: target, Action: ActionCreate, Reason: "rising hot access pattern"}, true
	case temp == Cold && trend == Falling:
		return Recommendation{Target: target, Action: ActionRemove, Reason: "cold and falling"}, true
	case temp == Hot:
		return Recommendation{Target: target, Action: ActionOptimize, Reason: "sustained hot access"}, true
	default:
		return Recommendation{}, false
	}
}

// ShouldPrioritize reports whether target is currently classified Hot.
func (a *AdaptiveIndex) ShouldPrioritize(target string) bool {
	return a.heat.Classify(target) == Hot
}

// ShouldDefer reports the inverse case: a cold, non-trending target whose
// reindex work can wait.
func (a *AdaptiveIndex) ShouldDefer(target string) bool {
	return a.heat.Classify(target) == Cold && a.heat.AccessTrend(target) != Rising
}

// Enqueue adds or re-prioritizes target in the reindex priority queue,
// using its current heat score as priority (higher score, higher
// priority).
func (a *AdaptiveIndex) Enqueue(target string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	score := a.heat.Score(target)
	if item, ok := a.index[target]; ok {
		item.priority = score
		heap.Fix(&a.priority, item.idx)
		return
	}
	item := &pqItem{target: target, priority: score}
	heap.Push(&a.priority, item)
	a.index[target] = item
}

// Dequeue pops the highest-priority reindex target. ok is false when the
// queue is empty.
func (a *AdaptiveIndex) Dequeue() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.priority.Len() == 0 {
		return "", false
	}
	item := heap.Pop(&a.priority).(*pqItem)
	delete(a.index, item.target)
	return item.target, true
}

type pqItem struct {
	target   string
	priority float64
	idx      int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].priority > pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].idx, pq[j].idx = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.idx = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
