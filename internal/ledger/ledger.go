// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ledger implements the append-only event log of spec §4.5/§4.9:
// every entry is assigned a monotonically increasing sequence number and
// a stable ID, and is never mutated or removed once appended. It backs
// incremental-index change events and the optimization layer's
// write-behind buffer (internal/optimize).
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable record in the ledger.
type Entry struct {
	ID       string         `json:"id"`
	Seq      uint64         `json:"seq"`
	Kind     string         `json:"kind"`
	Subject  string         `json:"subject"`
	Payload  map[string]any `json:"payload,omitempty"`
	Recorded int64          `json:"recorded_unix_nano"`
}

// Ledger is an in-memory append-only log, optionally mirrored to a file
// for durability across restarts. Entries are never removed; callers that
// need compaction take a snapshot and start a fresh ledger.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	nextSeq uint64
	file    *os.File

	byID map[string]int // id -> index into entries, for Get
}

// Open creates a Ledger. If path is non-empty, every Append is also
// written as newline-delimited JSON to that file (created if absent,
// appended to if present); entries already in the file are not read
// back, so a reopened Ledger starts empty with Seq counting from 1.
func Open(path string) (*Ledger, error) {
	l := &Ledger{byID: make(map[string]int)}
	if path == "" {
		return l, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	l.file = f
	return l, nil
}

// Append assigns the next sequence number and a fresh ID to a new entry
// and stores it. The returned Entry is the durable record.
func (l *Ledger) Append(kind, subject string, payload map[string]any) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	e := Entry{
		ID:       uuid.NewString(),
		Seq:      l.nextSeq,
		Kind:     kind,
		Subject:  subject,
		Payload:  payload,
	}
	e.Recorded = nowUnixNano()

	if l.file != nil {
		line, err := json.Marshal(e)
		if err != nil {
			return Entry{}, fmt.Errorf("marshal ledger entry: %w", err)
		}
		line = append(line, '\n')
		if _, err := l.file.Write(line); err != nil {
			return Entry{}, fmt.Errorf("write ledger entry: %w", err)
		}
	}

	l.byID[e.ID] = len(l.entries)
	l.entries = append(l.entries, e)
	return e, nil
}

// nowUnixNano is indirected so tests can stub it for deterministic
// timestamps; it never calls time.Now() more than once per Append.
var nowUnixNano = func() int64 { return time.Now().UnixNano() }

// Get returns the entry with the given ID, if present.
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// Since returns every entry with Seq strictly greater than seq, in
// ascending sequence order — the feed consumers (write-behind flush,
// incremental-index watchers) replay from.
func (l *Ledger) Since(seq uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the highest sequence number appended so far (0 if empty).
func (l *Ledger) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq
}

// Len returns the number of entries currently held in memory.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close releases the backing file, if any.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
