// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package optimize

import (
	"sync"
	"time"

	"github.com/kraklabs/cie/internal/ledger"
)

// WriteBehindLedger wraps an append-only ledger.Ledger with a buffer:
// Append returns immediately after buffering, a periodic task flushes the
// buffer into the underlying ledger, and every read operation flushes
// first so callers always observe their own prior writes even if the
// periodic flush hasn't run yet.
type WriteBehindLedger struct {
	mu      sync.Mutex
	under   *ledger.Ledger
	pending []pendingEntry
	byID    map[string]ledger.Entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type pendingEntry struct {
	kind    string
	subject string
	payload map[string]any
}

// NewWriteBehindLedger wraps under, flushing pending appends every
// flushInterval via a background goroutine. Call Close to stop it.
func NewWriteBehindLedger(under *ledger.Ledger, flushInterval time.Duration) *WriteBehindLedger {
	w := &WriteBehindLedger{under: under, byID: make(map[string]ledger.Entry), stopCh: make(chan struct{})}
	if flushInterval > 0 {
		w.wg.Add(1)
		go w.loop(flushInterval)
	}
	return w
}

func (w *WriteBehindLedger) loop(interval time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Flush()
		case <-w.stopCh:
			return
		}
	}
}

// Append buffers a new entry without touching the underlying ledger.
// GetEntry and Head flush the buffer before reading, so they see it.
func (w *WriteBehindLedger) Append(kind, subject string, payload map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, pendingEntry{kind: kind, subject: subject, payload: payload})
}

// Flush drains every buffered entry into the underlying ledger.
func (w *WriteBehindLedger) Flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, p := range batch {
		e, err := w.under.Append(p.kind, p.subject, p.payload)
		if err != nil {
			continue
		}
		w.mu.Lock()
		w.byID[e.ID] = e
		w.mu.Unlock()
	}
}

// GetEntry flushes pending writes, then returns the entry by ID, checking
// the recently-flushed cache before falling back to the underlying
// ledger (read-your-writes).
func (w *WriteBehindLedger) GetEntry(id string) (ledger.Entry, bool) {
	w.Flush()
	w.mu.Lock()
	if e, ok := w.byID[id]; ok {
		w.mu.Unlock()
		return e, true
	}
	w.mu.Unlock()
	return w.under.Get(id)
}

// Head flushes pending writes, then returns the underlying ledger's
// current highest sequence number.
func (w *WriteBehindLedger) Head() uint64 {
	w.Flush()
	return w.under.Head()
}

// Close stops the periodic flush goroutine and performs one final flush.
func (w *WriteBehindLedger) Close() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.wg.Wait()
	w.Flush()
}
