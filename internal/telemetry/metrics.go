// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SubsystemMetrics is a lazily-registered set of Prometheus counters and
// histograms for one subsystem (search, router, cache, ...), created once
// per subsystem name and cached in a mutex-guarded map.
type SubsystemMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	cacheHits *prometheus.CounterVec
}

var (
	subsystemMetricsMu     sync.Mutex
	subsystemMetricsByName = make(map[string]*SubsystemMetrics)
)

// NewSubsystemMetrics returns the (singleton, per-process) metric set for
// subsystem, registering it with the default Prometheus registry on first
// use. Calling it again with the same name returns the same instance
// instead of re-registering, so packages can call this from an init-time
// constructor without tripping prometheus's duplicate-collector panic.
func NewSubsystemMetrics(subsystem string) *SubsystemMetrics {
	subsystemMetricsMu.Lock()
	defer subsystemMetricsMu.Unlock()
	if m, ok := subsystemMetricsByName[subsystem]; ok {
		return m
	}
	m := &SubsystemMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cie_" + subsystem + "_requests_total",
			Help: "Total requests handled by the " + subsystem + " subsystem",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cie_" + subsystem + "_errors_total",
			Help: "Total errors in the " + subsystem + " subsystem",
		}, []string{"operation"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cie_" + subsystem + "_latency_seconds",
			Help:    "Operation latency for the " + subsystem + " subsystem",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cie_" + subsystem + "_cache_hits_total",
			Help: "Cache hits vs misses in the " + subsystem + " subsystem",
		}, []string{"result"}),
	}
	prometheus.MustRegister(m.requests, m.errors, m.latency, m.cacheHits)
	subsystemMetricsByName[subsystem] = m
	return m
}

// RecordRequest increments the request counter for operation and observes
// elapsedSeconds in the latency histogram.
func (m *SubsystemMetrics) RecordRequest(operation string, elapsedSeconds float64) {
	m.requests.WithLabelValues(operation).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsedSeconds)
}

// RecordError increments the error counter for operation.
func (m *SubsystemMetrics) RecordError(operation string) {
	m.errors.WithLabelValues(operation).Inc()
}

// RecordCacheResult increments the cache hit/miss counter, result being
// "hit" or "miss".
func (m *SubsystemMetrics) RecordCacheResult(result string) {
	m.cacheHits.WithLabelValues(result).Inc()
}
