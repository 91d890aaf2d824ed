// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package router implements the model router and feedback loop of spec
// §4.10: it registers one or more model providers, scores candidate
// models against a routing policy, executes requests with fallback, and
// adjusts future scoring from a rolling window of outcomes.
package router

import "time"

// ModelConfig advertises one routable model's capabilities and cost
// profile.
type ModelConfig struct {
	ID              string
	Vendor          string
	Local           bool
	Capabilities    []string
	ContextWindow   int
	MaxOutputTokens int
	CostPer1kIn     float64
	CostPer1kOut    float64
	TypicalLatency  time.Duration
	P95Latency      time.Duration
	QualityScore    float64 // 0..1
	SupportedTasks  []string
}

// Task identifies the kind of work being routed (e.g. "summarize",
// "embed", "chat").
type Task string

// Policy constrains and biases candidate scoring for one routing
// decision. Every field is optional; the zero value imposes no
// constraint.
type Policy struct {
	PreferLocal          bool
	MaxLatency           time.Duration
	MaxCostPerRequest    float64
	RequiredCapabilities []string
	PreferredVendors     []string
	FallbackOrder        []string
	QualityThreshold     float64
}

// Decision is the router's chosen model plus the ranked alternatives it
// would fall back to, in score order.
type Decision struct {
	Primary      ModelConfig
	Alternatives []ModelConfig
	Scores       map[string]float64
}

// hasCapability reports whether m advertises cap.
func (m ModelConfig) hasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

func (m ModelConfig) supportsTask(task Task) bool {
	if len(m.SupportedTasks) == 0 {
		return true
	}
	for _, t := range m.SupportedTasks {
		if Task(t) == task {
			return true
		}
	}
	return false
}
