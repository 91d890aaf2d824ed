// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"path"
	"strings"
)

const (
	exactFilenameBoost      = 1.5
	definitionSemanticBoost = 1.1
	maxPopularityBoost      = 1.3
	popularityBoostPerCall  = 0.02
)

// applyBoosts multiplies each hit's score by the heuristic boosts, in
// the documented order: exact filename match, then semantic-hit boost
// for definition-intent queries, then popular-entity boost from
// incoming call count, then any configured domain boosts.
func applyBoosts(ctx context.Context, hits []Hit, query string, intent Intent, popularity PopularityEngine, domainBoosts map[string]float64) {
	queryBase := strings.ToLower(baseNameNoExt(query))

	for i := range hits {
		h := &hits[i]

		if queryBase != "" && strings.ToLower(baseNameNoExt(h.FilePath)) == queryBase {
			h.Score *= exactFilenameBoost
		}

		if intent == IntentDefinition && (h.Source == SourceSemantic || h.Source == SourceBoth) {
			h.Score *= definitionSemanticBoost
		}

		if popularity != nil && h.Name != "" {
			if count, err := popularity.IncomingCallCount(ctx, h.Name); err == nil && count > 0 {
				boost := 1.0 + min(float64(count)*popularityBoostPerCall, maxPopularityBoost-1.0)
				h.Score *= boost
			}
		}

		for substr, mult := range domainBoosts {
			if strings.Contains(h.FilePath, substr) {
				h.Score *= mult
			}
		}
	}
}

func baseNameNoExt(p string) string {
	b := path.Base(p)
	if i := strings.LastIndex(b, "."); i > 0 {
		return b[:i]
	}
	return b
}
