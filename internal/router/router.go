// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cieerrors "github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/internal/optimize"
	"github.com/kraklabs/cie/pkg/llm"
)

// registeredProvider pairs a concrete llm.Provider with the model
// configurations it advertises and the circuit breaker guarding it.
type registeredProvider struct {
	provider llm.Provider
	models   []ModelConfig
	breaker  *breaker
}

// Router selects a model per request given a Policy, executes it with
// fallback across alternatives, and feeds every attempt's outcome back
// into its FeedbackLoop for future scoring adjustments.
type Router struct {
	mu sync.RWMutex
	// registrations is keyed by model ID rather than provider name:
	// distinct registrations (e.g. two local Ollama model families) may
	// legitimately share a provider name.
	registrations map[string]*registeredProvider
	feedback      *FeedbackLoop
	logger        *slog.Logger
	costs         *optimize.CostAttribution
}

// NewRouter builds an empty Router. logger may be nil.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registrations: make(map[string]*registeredProvider),
		feedback:      NewFeedbackLoop(defaultFeedbackWindow, defaultMinSamples, defaultAdjustmentDecay),
		logger:        logger,
		costs:         optimize.NewCostAttribution(),
	}
}

// CostReport rolls up every successful Execute/ExecuteChat attempt's
// token usage and estimated cost, grouped by routing Task.
func (r *Router) CostReport() []optimize.CostSummary {
	return r.costs.ByOperation()
}

// RegisterProvider adds a provider and the model configurations it
// serves. Re-registering a model ID replaces its prior registration.
func (r *Router) RegisterProvider(p llm.Provider, models []ModelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp := &registeredProvider{provider: p, models: models, breaker: newBreaker(p.Name())}
	for _, m := range models {
		r.registrations[m.ID] = rp
	}
	r.logger.Info("router.provider.registered", "provider", p.Name(), "models", len(models))
}

// Feedback exposes the router's feedback loop for inspection/tests.
func (r *Router) Feedback() *FeedbackLoop { return r.feedback }

type candidate struct {
	cfg      ModelConfig
	provider *registeredProvider
}

func (r *Router) allModels() []candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]candidate, 0, len(r.registrations))
	for id, rp := range r.registrations {
		for _, m := range rp.models {
			if m.ID == id {
				out = append(out, candidate{cfg: m, provider: rp})
				break
			}
		}
	}
	return out
}

// Route filters registered models against policy and the feedback loop's
// disable set, scores the survivors, and returns the winner plus ranked
// alternatives. Returns a model-kind CieError if no candidate survives.
func (r *Router) Route(task Task, policy Policy) (Decision, error) {
	candidates := r.allModels()

	type scored struct {
		cfg   ModelConfig
		score float64
	}
	var survivors []scored

	for _, c := range candidates {
		if !c.cfg.supportsTask(task) {
			continue
		}
		if r.feedback.IsDisabled(c.cfg.ID) {
			continue
		}
		if !passesPolicy(c.cfg, policy) {
			continue
		}
		base := score(c.cfg, policy)
		adjusted := r.feedback.GetAdjustedScore(c.cfg.ID, base)
		survivors = append(survivors, scored{cfg: c.cfg, score: adjusted})
	}

	if len(survivors) == 0 {
		return Decision{}, cieerrors.New(cieerrors.KindModel, "router.no_candidates",
			fmt.Sprintf("no model satisfies policy for task %q", task), nil)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].score != survivors[j].score {
			return survivors[i].score > survivors[j].score
		}
		ci, cj := survivors[i].cfg, survivors[j].cfg
		if ci.CostPer1kIn != cj.CostPer1kIn {
			return ci.CostPer1kIn < cj.CostPer1kIn
		}
		return ci.TypicalLatency < cj.TypicalLatency
	})

	decision := Decision{Primary: survivors[0].cfg, Scores: make(map[string]float64, len(survivors))}
	for _, s := range survivors[1:] {
		decision.Alternatives = append(decision.Alternatives, s.cfg)
	}
	for _, s := range survivors {
		decision.Scores[s.cfg.ID] = s.score
	}
	return decision, nil
}

// passesPolicy applies policy's hard filters. prefer_local is a scoring
// bias, not a filter here, so a capable remote model still survives
// when no local model qualifies.
func passesPolicy(m ModelConfig, p Policy) bool {
	for _, req := range p.RequiredCapabilities {
		if !m.hasCapability(req) {
			return false
		}
	}
	if p.MaxLatency > 0 && m.TypicalLatency > p.MaxLatency {
		return false
	}
	if p.QualityThreshold > 0 && m.QualityScore < p.QualityThreshold {
		return false
	}
	return true
}

// score implements the spec §4.10 scoring formula: base quality plus
// bonuses for locality, latency, cost, context window, and vendor
// preference order.
func score(m ModelConfig, p Policy) float64 {
	s := m.QualityScore * 100

	if p.PreferLocal && m.Local {
		s += 30
	}

	if p.MaxLatency > 0 && m.TypicalLatency > 0 {
		ratio := 1 - float64(m.TypicalLatency)/float64(p.MaxLatency)
		if ratio > 0 {
			s += ratio * 20
		}
	} else if m.TypicalLatency > 0 {
		// No explicit ceiling: reward lower absolute latency up to 1s.
		s += clamp(20*(1-float64(m.TypicalLatency)/float64(time.Second)), 0, 20)
	}

	if p.MaxCostPerRequest > 0 && m.CostPer1kIn > 0 {
		ratio := 1 - (m.CostPer1kIn / 1000 * 1000 / p.MaxCostPerRequest)
		s += clamp(ratio*15, 0, 15)
	} else {
		s += clamp(15*(1-m.CostPer1kIn/10), 0, 15)
	}

	s += clamp(float64(m.ContextWindow)/100000*10, 0, 10)

	for i, vendor := range p.PreferredVendors {
		if vendor == m.Vendor {
			s += float64(len(p.PreferredVendors)-i) * 2
			break
		}
	}

	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ModelOutcome records the result of one execution attempt, fed to the
// FeedbackLoop after every Execute call.
type ModelOutcome struct {
	ModelID  string
	Success  bool
	Latency  time.Duration
	Tokens   int
	CostUSD  float64
	Fallback bool
	Err      error
}

// Execute routes task, then tries the primary model and, on failure,
// each alternative in score order (skipping any the feedback loop
// disables mid-attempt), recording a ModelOutcome for every attempt.
func (r *Router) Execute(ctx context.Context, task Task, policy Policy, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	decision, err := r.Route(task, policy)
	if err != nil {
		return nil, err
	}

	order := append([]ModelConfig{decision.Primary}, decision.Alternatives...)
	var lastErr error
	for i, model := range order {
		if i > 0 && r.feedback.IsDisabled(model.ID) {
			continue
		}
		rp := r.providerFor(model.ID)
		if rp == nil {
			continue
		}
		start := time.Now()
		reqCopy := req
		reqCopy.Model = model.ID
		resp, execErr := rp.breaker.execute(func() (*llm.GenerateResponse, error) {
			return rp.provider.Generate(ctx, reqCopy)
		})
		latency := time.Since(start)

		outcome := ModelOutcome{ModelID: model.ID, Latency: latency, Fallback: i > 0, Err: execErr}
		if execErr == nil {
			outcome.Success = true
			outcome.Tokens = resp.TotalTokens
			outcome.CostUSD = estimateCost(model, resp.PromptTokens, resp.OutputTokens)
			r.costs.Record(optimize.UsageRecord{
				Operation: string(task), Model: model.ID,
				InputTokens: resp.PromptTokens, OutputTokens: resp.OutputTokens,
				ComputeTime: latency, CostUSD: outcome.CostUSD,
			})
		}
		r.feedback.Record(outcome)

		if execErr == nil {
			return resp, nil
		}
		lastErr = execErr
		r.logger.Warn("router.execute.attempt_failed", "model", model.ID, "fallback_index", i, "error", execErr)
	}

	return nil, cieerrors.New(cieerrors.KindModel, "router.all_attempts_failed", "every candidate model failed", lastErr)
}

// ExecuteChat is Execute's twin for multi-turn chat requests (e.g.
// narrative generation), applying the same routing, circuit-breaking,
// and feedback recording to llm.Provider.Chat instead of Generate.
func (r *Router) ExecuteChat(ctx context.Context, task Task, policy Policy, req llm.ChatRequest) (*llm.ChatResponse, error) {
	decision, err := r.Route(task, policy)
	if err != nil {
		return nil, err
	}

	order := append([]ModelConfig{decision.Primary}, decision.Alternatives...)
	var lastErr error
	for i, model := range order {
		if i > 0 && r.feedback.IsDisabled(model.ID) {
			continue
		}
		rp := r.providerFor(model.ID)
		if rp == nil {
			continue
		}
		start := time.Now()
		reqCopy := req
		reqCopy.Model = model.ID
		resp, execErr := rp.breaker.executeChat(func() (*llm.ChatResponse, error) {
			return rp.provider.Chat(ctx, reqCopy)
		})
		latency := time.Since(start)

		outcome := ModelOutcome{ModelID: model.ID, Latency: latency, Fallback: i > 0, Err: execErr}
		if execErr == nil {
			outcome.Success = true
			outcome.Tokens = resp.TotalTokens
			outcome.CostUSD = estimateCost(model, resp.PromptTokens, resp.OutputTokens)
			r.costs.Record(optimize.UsageRecord{
				Operation: string(task), Model: model.ID,
				InputTokens: resp.PromptTokens, OutputTokens: resp.OutputTokens,
				ComputeTime: latency, CostUSD: outcome.CostUSD,
			})
		}
		r.feedback.Record(outcome)

		if execErr == nil {
			return resp, nil
		}
		lastErr = execErr
		r.logger.Warn("router.execute_chat.attempt_failed", "model", model.ID, "fallback_index", i, "error", execErr)
	}

	return nil, cieerrors.New(cieerrors.KindModel, "router.all_attempts_failed", "every candidate model failed", lastErr)
}

func estimateCost(m ModelConfig, inTokens, outTokens int) float64 {
	return float64(inTokens)/1000*m.CostPer1kIn + float64(outTokens)/1000*m.CostPer1kOut
}

func (r *Router) providerFor(modelID string) *registeredProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registrations[modelID]
}

// Stats reports the feedback loop's current rolling statistics for every
// model that has recorded at least one outcome.
func (r *Router) Stats() map[string]RollingStats {
	return r.feedback.AllStats()
}

// Shutdown is a no-op placeholder satisfying the spec's router lifecycle
// contract; providers registered with this router own their own
// connections and are closed independently.
func (r *Router) Shutdown() {}
