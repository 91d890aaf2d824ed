// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package search implements the hybrid search pipeline: intent
// classification, parallel semantic and lexical retrieval, reciprocal-rank
// fusion, heuristic boosting, and snippet resolution over whatever engines
// the caller wires in.
package search

import "regexp"

// Intent is the closed set of query intents the classifier recognizes.
type Intent string

const (
	IntentDefinition Intent = "definition"
	IntentUsage      Intent = "usage"
	IntentConceptual Intent = "conceptual"
	IntentKeyword    Intent = "keyword"
)

var (
	definitionPattern = regexp.MustCompile(`(?i)^where\s+is\s+.+\s+defined|^(class|interface|struct|type)\s+\w+`)
	usagePattern       = regexp.MustCompile(`(?i)^who\s+calls\s+|usages?\s+of\s+|where\s+is\s+.+\s+(used|called)`)
	conceptualPattern  = regexp.MustCompile(`(?i)\?$|^how\s+does\s+|^explain\s+|what\s+is\s+the\s+purpose|^where\s+is\s+.+(ing|\s)`)
)

// ClassifyIntent assigns one Intent to a query by ordered rule match:
// definition cues first, then usage cues, then conceptual cues, and
// keyword as the fallback. Order matters because some cues overlap
// (e.g. "where is the config loaded" without "defined"/"used" falls
// through to conceptual; a bare "where is X" matches no cue and is
// keyword).
func ClassifyIntent(query string) Intent {
	switch {
	case definitionPattern.MatchString(query):
		return IntentDefinition
	case usagePattern.MatchString(query):
		return IntentUsage
	case conceptualPattern.MatchString(query):
		return IntentConceptual
	default:
		return IntentKeyword
	}
}

// FusionWeights biases reciprocal-rank fusion toward semantic or lexical
// results depending on the query's classified intent.
type FusionWeights struct {
	Semantic float64
	Lexical  float64
}

// WeightsFor returns the fusion weights for an intent. Definition and
// usage queries are precise and benefit from lexical/call-graph
// precision; conceptual queries lean on embeddings; keyword queries
// split evenly.
func WeightsFor(intent Intent) FusionWeights {
	switch intent {
	case IntentDefinition:
		return FusionWeights{Semantic: 0.4, Lexical: 0.6}
	case IntentUsage:
		return FusionWeights{Semantic: 0.3, Lexical: 0.7}
	case IntentConceptual:
		return FusionWeights{Semantic: 0.7, Lexical: 0.3}
	default:
		return FusionWeights{Semantic: 0.5, Lexical: 0.5}
	}
}
