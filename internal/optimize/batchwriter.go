// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WriteItem is one buffered unit of work for a BatchWriter. Higher
// Priority values flush first within a batch.
type WriteItem struct {
	Priority int
	Payload  any
}

// FlushFunc performs the actual write of one batch; a non-nil error
// triggers the writer's backoff/retry policy.
type FlushFunc func(ctx context.Context, items []WriteItem) error

// BatchWriter buffers WriteItems and flushes them, priority order, when
// the buffer reaches maxBatchSize or maxWaitMs has elapsed since the
// first buffered item, whichever comes first. Failed flushes are retried
// with exponential backoff up to maxRetries; Shutdown drains everything
// still pending.
type BatchWriter struct {
	mu           sync.Mutex
	buffer       []WriteItem
	maxBatchSize int
	maxWait      time.Duration
	maxRetries   uint64
	flush        FlushFunc
	logger       *slog.Logger

	firstBuffered time.Time
	timer         *time.Timer
	stopped       bool
	wg            sync.WaitGroup
}

// NewBatchWriter builds a BatchWriter. logger may be nil (defaults to
// slog.Default()).
func NewBatchWriter(maxBatchSize int, maxWait time.Duration, maxRetries uint64, flush FlushFunc, logger *slog.Logger) *BatchWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &BatchWriter{maxBatchSize: maxBatchSize, maxWait: maxWait, maxRetries: maxRetries, flush: flush, logger: logger}
}

// Add buffers item, triggering an immediate flush if the batch is now
// full, or scheduling a timed flush if this is the first item since the
// last flush.
func (w *BatchWriter) Add(item WriteItem) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if len(w.buffer) == 0 {
		w.firstBuffered = time.Now()
		if w.maxWait > 0 {
			w.timer = time.AfterFunc(w.maxWait, w.flushAsync)
		}
	}
	w.buffer = append(w.buffer, item)
	full := len(w.buffer) >= w.maxBatchSize
	w.mu.Unlock()

	if full {
		w.flushAsync()
	}
}

func (w *BatchWriter) flushAsync() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.FlushNow(context.Background())
	}()
}

// FlushNow synchronously flushes whatever is currently buffered,
// retrying on failure per the configured backoff policy. It is also what
// the timed/full-batch paths call internally.
func (w *BatchWriter) FlushNow(ctx context.Context) error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	items := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].Priority > items[j].Priority })

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), w.maxRetries)
	err := backoff.Retry(func() error {
		return w.flush(ctx, items)
	}, bo)
	if err != nil {
		w.logger.Error("batch flush failed after retries", "items", len(items), "error", err)
	}
	return err
}

// Shutdown flushes any remaining buffered items and stops accepting new
// ones.
func (w *BatchWriter) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	err := w.FlushNow(ctx)
	w.wg.Wait()
	return err
}

// Pending reports how many items are currently buffered.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
