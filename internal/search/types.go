// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import "context"

// EngineResult is one hit returned by a retrieval engine, ranked by that
// engine's own notion of relevance (rank 0 is best).
type EngineResult struct {
	FilePath  string
	Name      string
	Signature string
	StartLine int
	CodeText  string
	Rank      int
}

// SemanticEngine performs embedding-based retrieval.
type SemanticEngine interface {
	Search(ctx context.Context, query string, limit int) ([]EngineResult, error)
}

// LexicalEngine performs regex/text-based retrieval.
type LexicalEngine interface {
	Search(ctx context.Context, pattern string, limit int) ([]EngineResult, error)
}

// PopularityEngine reports how many distinct call sites reference a
// named entity, used for the popular-entity boost.
type PopularityEngine interface {
	IncomingCallCount(ctx context.Context, name string) (int, error)
}

// Expander proposes synonym/related terms for query expansion. A router-
// backed implementation calls an LLM; NewEdlibExpander (expand.go) is the
// non-model fallback.
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Source attributes where a fused result came from.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceLexical  Source = "lexical"
	SourceBoth     Source = "both"
)

// Hit is one row of a hybrid search result: one file, with fusion score,
// source attribution, and a resolved snippet.
type Hit struct {
	FilePath  string
	Name      string
	Signature string
	StartLine int
	Score     float64
	Source    Source
	Snippet   string
}

// Meta describes how a hybrid search request was processed.
type Meta struct {
	Intent           Intent
	SemanticCount    int
	LexicalCount     int
	ProcessingTimeMs int64
	ExpandedTerms    []string
}

// Result is the full output of a hybrid search.
type Result struct {
	Hits []Hit
	Meta Meta
}

// Options configures one hybrid search request.
type Options struct {
	Limit         int
	DomainBoosts  map[string]float64 // filename-substring -> multiplier
	EngineTimeout int64              // milliseconds; 0 = no explicit deadline
	Expand        bool
}
