// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package router

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/kraklabs/cie/pkg/llm"
)

// breaker wraps one provider's calls in a gobreaker.CircuitBreaker so a
// provider that is failing hard trips open and fails fast instead of
// piling up latency on every routed request.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string) *breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

var errBreakerOpen = errors.New("router: circuit breaker open")

// execute runs fn through the breaker, translating an open-circuit
// rejection into errBreakerOpen so callers can treat it like any other
// attempt failure and move to the next fallback.
func (b *breaker) execute(fn func() (*llm.GenerateResponse, error)) (*llm.GenerateResponse, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errBreakerOpen
		}
		return nil, err
	}
	return result.(*llm.GenerateResponse), nil
}

// executeChat is execute's twin for Chat-shaped calls, sharing the same
// underlying circuit breaker so a provider failing on either call style
// trips the breaker for both.
func (b *breaker) executeChat(fn func() (*llm.ChatResponse, error)) (*llm.ChatResponse, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errBreakerOpen
		}
		return nil, err
	}
	return result.(*llm.ChatResponse), nil
}
