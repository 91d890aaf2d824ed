// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Service runs the hybrid search pipeline over whatever engines it is
// constructed with. Any engine may be nil, in which case the pipeline
// falls through to whichever engine remains available.
type Service struct {
	semantic   SemanticEngine
	lexical    LexicalEngine
	popularity PopularityEngine
	expander   Expander
	logger     *slog.Logger
}

// NewService builds a hybrid search Service. popularity and expander may
// be nil; semantic and lexical should not both be nil.
func NewService(semantic SemanticEngine, lexical LexicalEngine, popularity PopularityEngine, expander Expander, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{semantic: semantic, lexical: lexical, popularity: popularity, expander: expander, logger: logger}
}

// Search runs the full pipeline: classify intent, retrieve from both
// engines in parallel with a shared deadline, fuse by reciprocal rank,
// boost, resolve snippets, dedup by file, and normalize.
func (s *Service) Search(ctx context.Context, query string, opts Options) (Result, error) {
	start := time.Now()
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	intent := ClassifyIntent(query)
	weights := WeightsFor(intent)

	queries := []string{query}
	var expandedTerms []string
	if opts.Expand && s.expander != nil {
		if terms, err := s.expander.Expand(ctx, query); err == nil {
			expandedTerms = terms
		} else {
			s.logger.Debug("search.expand.failed", "error", err)
		}
	}

	if opts.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.EngineTimeout)*time.Millisecond)
		defer cancel()
	}

	semResults, lexResults := s.retrieveParallel(ctx, query, opts.Limit)

	fused := reciprocalRankFusion(semResults, lexResults, weights)

	lexicalLineByPath := make(map[string]string, len(lexResults))
	for _, r := range lexResults {
		if _, ok := lexicalLineByPath[r.FilePath]; !ok {
			lexicalLineByPath[r.FilePath] = firstLine(r.CodeText)
		}
	}

	hits := make([]Hit, 0, len(fused))
	for _, e := range fused {
		e.hit.Snippet = resolveSnippet(e.hit, lexicalLineByPath[e.hit.FilePath])
		hits = append(hits, e.hit)
	}

	applyBoosts(ctx, hits, query, intent, s.popularity, opts.DomainBoosts)
	normalizeScores(hits)

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FilePath < hits[j].FilePath
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	_ = queries // reserved for future multi-query expansion fan-out

	return Result{
		Hits: hits,
		Meta: Meta{
			Intent:           intent,
			SemanticCount:    len(semResults),
			LexicalCount:     len(lexResults),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			ExpandedTerms:    expandedTerms,
		},
	}, nil
}

// retrieveParallel runs the semantic and lexical engines concurrently.
// An engine that is nil or that errors contributes no results, letting
// the pipeline fall through to whichever engine succeeded.
func (s *Service) retrieveParallel(ctx context.Context, query string, limit int) (semantic, lexical []EngineResult) {
	var wg sync.WaitGroup

	if s.semantic != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.semantic.Search(ctx, query, limit)
			if err != nil {
				s.logger.Debug("search.semantic.failed", "error", err)
				return
			}
			semantic = res
		}()
	}

	if s.lexical != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.lexical.Search(ctx, query, limit)
			if err != nil {
				s.logger.Debug("search.lexical.failed", "error", err)
				return
			}
			lexical = res
		}()
	}

	wg.Wait()
	return semantic, lexical
}

func firstLine(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			return text[:i]
		}
	}
	return text
}
