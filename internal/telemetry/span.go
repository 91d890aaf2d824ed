// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package telemetry implements the minimal tracing contract of spec §4.11:
// spans carrying attributes/events/status, flushed in batches to a
// pluggable exporter. When disabled, every operation is a near-zero-cost
// no-op.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SpanStatus is the closed outcome set a span ends with.
type SpanStatus string

const (
	StatusUnset SpanStatus = "unset"
	StatusOK    SpanStatus = "ok"
	StatusError SpanStatus = "error"
)

// Event is a timestamped annotation attached to a span.
type Event struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SpanData is the serializable, completed form of a Span, suitable for an
// Exporter.
type SpanData struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Events       []Event        `json:"events,omitempty"`
	Status       SpanStatus     `json:"status"`
	StatusMsg    string         `json:"status_message,omitempty"`
}

// Span is a single unit of traced work. Start/End bracket the work;
// attributes and events may be added at any point in between.
type Span struct {
	mu     sync.Mutex
	data   SpanData
	tracer *Tracer
	ended  bool
}

// SetAttribute records a key/value pair on the span.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Attributes == nil {
		s.data.Attributes = make(map[string]any)
	}
	s.data.Attributes[key] = value
}

// AddEvent appends a timestamped event to the span.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Events = append(s.data.Events, Event{Name: name, Timestamp: time.Now(), Attributes: attrs})
}

// RecordException attaches an error as an "exception" event and marks the
// span's status as error unless it already carries a more specific status.
func (s *Span) RecordException(err error) {
	if s == nil || err == nil {
		return
	}
	s.AddEvent("exception", map[string]any{"message": err.Error()})
	s.mu.Lock()
	if s.data.Status == StatusUnset {
		s.data.Status = StatusError
		s.data.StatusMsg = err.Error()
	}
	s.mu.Unlock()
}

// SetStatus explicitly sets the span's terminal status.
func (s *Span) SetStatus(status SpanStatus, message string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.data.Status = status
	s.data.StatusMsg = message
	s.mu.Unlock()
}

// End closes the span and hands it to the tracer for export.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.data.EndTime = time.Now()
	data := s.data
	s.mu.Unlock()
	if s.tracer != nil {
		s.tracer.finish(data)
	}
}

// StartSpanOptions configures a new span.
type StartSpanOptions struct {
	Parent     *Span
	Attributes map[string]any
}

// Tracer buffers completed spans and periodically flushes them to an
// Exporter, either when the buffer fills or on a tick. A disabled tracer
// (NewTracer(nil, ...) with enabled=false) makes StartSpan return a span
// whose operations are all no-ops.
type Tracer struct {
	exporter Exporter
	enabled  bool
	maxBatch int

	mu      sync.Mutex
	buffer  []SpanData
	seq     uint64
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewTracer builds a Tracer flushing to exporter every flushInterval or
// when the buffer reaches maxBatch spans, whichever comes first. Pass
// enabled=false to obtain a no-op tracer (e.g. when telemetry is
// disabled by configuration).
func NewTracer(exporter Exporter, maxBatch int, flushInterval time.Duration, enabled bool) *Tracer {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	t := &Tracer{exporter: exporter, enabled: enabled, maxBatch: maxBatch, closeCh: make(chan struct{})}
	if enabled && exporter != nil && flushInterval > 0 {
		t.wg.Add(1)
		go t.tick(flushInterval)
	}
	return t
}

func (t *Tracer) tick(interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Flush(context.Background())
		case <-t.closeCh:
			return
		}
	}
}

func newTraceID(seq uint64) string { return fmt.Sprintf("%016x%08x", time.Now().UnixNano(), seq) }

// StartSpan begins a new span. If the tracer is disabled it returns a nil
// *Span and does no other work; every Span method is a no-op on a nil
// receiver, so call sites never need a nil check.
func (t *Tracer) StartSpan(name string, opts StartSpanOptions) *Span {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	traceID := newTraceID(seq)
	var parentSpanID string
	if opts.Parent != nil {
		opts.Parent.mu.Lock()
		traceID = opts.Parent.data.TraceID
		parentSpanID = opts.Parent.data.SpanID
		opts.Parent.mu.Unlock()
	}

	return &Span{
		tracer: t,
		data: SpanData{
			TraceID:      traceID,
			SpanID:       fmt.Sprintf("%016x", seq),
			ParentSpanID: parentSpanID,
			Name:         name,
			StartTime:    time.Now(),
			Attributes:   opts.Attributes,
			Status:       StatusUnset,
		},
	}
}

// StartActiveSpan wraps fn's execution in a span: the span is passed to
// fn, ended on return, and any returned error is recorded and turns the
// span's status to error.
func (t *Tracer) StartActiveSpan(ctx context.Context, name string, fn func(ctx context.Context, span *Span) error) error {
	span := t.StartSpan(name, StartSpanOptions{})
	defer span.End()
	err := fn(ctx, span)
	if err != nil {
		span.RecordException(err)
		return err
	}
	span.SetStatus(StatusOK, "")
	return nil
}

func (t *Tracer) finish(data SpanData) {
	if !t.enabled || t.exporter == nil {
		return
	}
	t.mu.Lock()
	t.buffer = append(t.buffer, data)
	full := len(t.buffer) >= t.maxBatch
	t.mu.Unlock()
	if full {
		t.Flush(context.Background())
	}
}

// Flush exports and clears the current buffer.
func (t *Tracer) Flush(ctx context.Context) error {
	if !t.enabled || t.exporter == nil {
		return nil
	}
	t.mu.Lock()
	batch := t.buffer
	t.buffer = nil
	t.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return t.exporter.Export(ctx, batch)
}

// Shutdown flushes pending spans and closes the exporter. Safe to call
// more than once.
func (t *Tracer) Shutdown(ctx context.Context) error {
	select {
	case <-t.closeCh:
	default:
		close(t.closeCh)
	}
	t.wg.Wait()
	if err := t.Flush(ctx); err != nil {
		return err
	}
	if t.exporter != nil {
		return t.exporter.Close()
	}
	return nil
}
