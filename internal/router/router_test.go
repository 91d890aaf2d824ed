// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cie/pkg/llm"
)

func TestRouter_RoutePrefersHigherScore(t *testing.T) {
	r := NewRouter(nil)
	r.RegisterProvider(&llm.MockProvider{GenerateFunc: okGenerate}, []ModelConfig{
		{ID: "cheap", Vendor: "local", Local: true, QualityScore: 0.6, CostPer1kIn: 0.1, TypicalLatency: 50 * time.Millisecond},
		{ID: "premium", Vendor: "cloud", QualityScore: 0.95, CostPer1kIn: 5, TypicalLatency: 800 * time.Millisecond},
	})

	decision, err := r.Route("chat", Policy{})
	require.NoError(t, err)
	require.Equal(t, "premium", decision.Primary.ID)
}

func TestRouter_RequiredCapabilityFiltersCandidates(t *testing.T) {
	r := NewRouter(nil)
	r.RegisterProvider(&llm.MockProvider{GenerateFunc: okGenerate}, []ModelConfig{
		{ID: "no-vision", QualityScore: 0.9, Capabilities: []string{"chat"}},
		{ID: "vision", QualityScore: 0.5, Capabilities: []string{"chat", "vision"}},
	})

	decision, err := r.Route("chat", Policy{RequiredCapabilities: []string{"vision"}})
	require.NoError(t, err)
	require.Equal(t, "vision", decision.Primary.ID)
}

func TestRouter_RouteErrorsWhenNoCandidateSurvives(t *testing.T) {
	r := NewRouter(nil)
	r.RegisterProvider(&llm.MockProvider{GenerateFunc: okGenerate}, []ModelConfig{
		{ID: "only", QualityScore: 0.5, Capabilities: []string{"chat"}},
	})

	_, err := r.Route("chat", Policy{RequiredCapabilities: []string{"vision"}})
	require.Error(t, err)
}

func TestRouter_ExecuteFallsBackOnFailure(t *testing.T) {
	r := NewRouter(nil)
	failing := &llm.MockProvider{GenerateFunc: func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return nil, errors.New("boom")
	}}
	working := &llm.MockProvider{GenerateFunc: okGenerate}

	r.RegisterProvider(failing, []ModelConfig{{ID: "flaky", QualityScore: 0.95}})
	r.RegisterProvider(working, []ModelConfig{{ID: "steady", QualityScore: 0.4}})

	resp, err := r.Execute(context.Background(), "chat", Policy{}, llm.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	stats := r.Stats()
	_ = stats // at least one outcome recorded; window too small to assert exact shape here
}

func TestFeedbackLoop_DisablesModelAfterRepeatedFailures(t *testing.T) {
	fl := NewFeedbackLoop(20, 5, 0.1)
	for i := 0; i < 10; i++ {
		fl.Record(ModelOutcome{ModelID: "bad", Success: false, Latency: time.Millisecond})
	}
	require.True(t, fl.IsDisabled("bad"))
}

func TestFeedbackLoop_BoostsConsistentlyGoodModel(t *testing.T) {
	fl := NewFeedbackLoop(20, 5, 0.1)
	for i := 0; i < 10; i++ {
		fl.Record(ModelOutcome{ModelID: "great", Success: true, Latency: time.Millisecond})
	}
	require.Greater(t, fl.GetAdjustedScore("great", 50), 50.0)
}

func okGenerate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return &llm.GenerateResponse{Text: "ok", Model: req.Model, TotalTokens: 10, Done: true}, nil
}
