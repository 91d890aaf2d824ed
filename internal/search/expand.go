// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"strings"

	"github.com/hbollon/go-edlib"
)

// synonymVocabulary seeds the non-model expansion fallback with common
// code-search synonym pairs. It is intentionally small: Levenshtein
// similarity (edlib.StringsSimilarity) surfaces terms close enough to the
// query's tokens; it is not meant to
// replace a real thesaurus or embedding-based expansion.
var synonymVocabulary = []string{
	"create", "new", "init", "initialize", "build", "construct",
	"delete", "remove", "destroy", "cleanup",
	"get", "fetch", "retrieve", "load", "read",
	"set", "update", "write", "save", "store",
	"list", "enumerate", "all", "find",
	"handler", "controller", "route", "endpoint",
	"config", "configuration", "settings", "options",
	"error", "exception", "failure",
	"parse", "decode", "deserialize",
	"format", "encode", "serialize",
}

// edlibExpander expands a query's tokens against synonymVocabulary using
// edit-distance similarity, for use when no model-backed Expander (e.g.
// a router-routed LLM) is configured.
type edlibExpander struct {
	threshold float64
	maxTerms  int
}

// NewEdlibExpander builds the non-model query expansion fallback.
func NewEdlibExpander() Expander {
	return &edlibExpander{threshold: 0.75, maxTerms: 4}
}

func (e *edlibExpander) Expand(ctx context.Context, query string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	for _, token := range strings.Fields(strings.ToLower(query)) {
		token = strings.Trim(token, ".,!?()[]{}")
		if len(token) < 3 {
			continue
		}
		for _, candidate := range synonymVocabulary {
			if candidate == token {
				continue
			}
			sim, err := edlib.StringsSimilarity(token, candidate, edlib.Levenshtein)
			if err != nil {
				continue
			}
			if float64(sim) >= e.threshold && !seen[candidate] {
				seen[candidate] = true
				out = append(out, candidate)
				if len(out) >= e.maxTerms {
					return out, nil
				}
			}
		}
	}
	return out, nil
}
