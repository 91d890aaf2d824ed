// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Exporter ships completed spans somewhere durable. Implementations must
// be safe for concurrent Export calls from a single Tracer's flush path.
type Exporter interface {
	Export(ctx context.Context, spans []SpanData) error
	Close() error
}

// fileExportEnvelope is the vendor-agnostic trace JSON format written one
// line per span batch, matching the structure most OTLP-JSON file
// exporters use: a resource wrapper plus a flat span list.
type fileExportEnvelope struct {
	Resource map[string]string `json:"resource"`
	Spans    []SpanData        `json:"spans"`
}

// FileExporter appends newline-delimited JSON batches to a file.
type FileExporter struct {
	mu   sync.Mutex
	f    *os.File
	name string
}

// NewFileExporter opens (creating/appending) the trace file at path.
func NewFileExporter(path string) (*FileExporter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{f: f, name: "cie"}, nil
}

func (e *FileExporter) Export(_ context.Context, spans []SpanData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	enc := json.NewEncoder(e.f)
	return enc.Encode(fileExportEnvelope{Resource: map[string]string{"service.name": e.name}, Spans: spans})
}

func (e *FileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Close()
}

// ConsoleExporter writes a compact one-line-per-span summary to an
// io.Writer (typically os.Stderr), for local debugging.
type ConsoleExporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleExporter returns an Exporter that prints to w.
func NewConsoleExporter(w io.Writer) *ConsoleExporter {
	return &ConsoleExporter{w: w}
}

func (e *ConsoleExporter) Export(_ context.Context, spans []SpanData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range spans {
		dur := s.EndTime.Sub(s.StartTime)
		if _, err := fmt.Fprintf(e.w, "[trace] %s span=%s status=%s dur=%s attrs=%v\n", s.TraceID, s.Name, s.Status, dur, s.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func (e *ConsoleExporter) Close() error { return nil }

// MemoryExporter accumulates spans in memory; intended for tests that
// assert on exported span shape.
type MemoryExporter struct {
	mu    sync.Mutex
	spans []SpanData
}

// NewMemoryExporter returns an empty in-memory exporter.
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{}
}

func (e *MemoryExporter) Export(_ context.Context, spans []SpanData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *MemoryExporter) Close() error { return nil }

// Spans returns a copy of every span exported so far.
func (e *MemoryExporter) Spans() []SpanData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SpanData, len(e.spans))
	copy(out, e.spans)
	return out
}
