// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

const (
	rrfKSemantic = 60
	rrfKLexical  = 60
)

// fusedEntry accumulates one file's reciprocal-rank-fusion score and the
// best evidence seen for it across engines.
type fusedEntry struct {
	hit          Hit
	fromSemantic bool
	fromLexical  bool
}

// reciprocalRankFusion merges ranked semantic and lexical result lists
// keyed by canonical file path: each result at rank r contributes
// 1/(k+r) to its file's score, scaled by the intent's fusion weights.
func reciprocalRankFusion(semantic, lexical []EngineResult, weights FusionWeights) map[string]*fusedEntry {
	fused := make(map[string]*fusedEntry)

	for _, r := range semantic {
		e := fused[r.FilePath]
		if e == nil {
			e = &fusedEntry{hit: hitFromEngineResult(r)}
			fused[r.FilePath] = e
		}
		e.hit.Score += weights.Semantic * (1.0 / float64(rrfKSemantic+r.Rank))
		e.fromSemantic = true
		if e.hit.Snippet == "" {
			e.hit.Snippet = r.CodeText
		}
	}

	for _, r := range lexical {
		e := fused[r.FilePath]
		if e == nil {
			e = &fusedEntry{hit: hitFromEngineResult(r)}
			fused[r.FilePath] = e
		}
		e.hit.Score += weights.Lexical * (1.0 / float64(rrfKLexical+r.Rank))
		e.fromLexical = true
		if e.hit.Snippet == "" {
			e.hit.Snippet = r.CodeText
		}
		if e.hit.Name == "" {
			e.hit.Name = r.Name
			e.hit.Signature = r.Signature
			e.hit.StartLine = r.StartLine
		}
	}

	for _, e := range fused {
		switch {
		case e.fromSemantic && e.fromLexical:
			e.hit.Source = SourceBoth
		case e.fromSemantic:
			e.hit.Source = SourceSemantic
		default:
			e.hit.Source = SourceLexical
		}
	}

	return fused
}

func hitFromEngineResult(r EngineResult) Hit {
	return Hit{
		FilePath:  r.FilePath,
		Name:      r.Name,
		Signature: r.Signature,
		StartLine: r.StartLine,
	}
}

// normalizeScores divides every hit's score by the maximum score in the
// set so the top result is always 1.0.
func normalizeScores(hits []Hit) {
	var max float64
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max == 0 {
		return
	}
	for i := range hits {
		hits[i].Score /= max
	}
}
