// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSemantic struct{ results []EngineResult }

func (f fakeSemantic) Search(ctx context.Context, query string, limit int) ([]EngineResult, error) {
	return f.results, nil
}

type fakeLexical struct{ results []EngineResult }

func (f fakeLexical) Search(ctx context.Context, query string, limit int) ([]EngineResult, error) {
	return f.results, nil
}

func TestClassifyIntent(t *testing.T) {
	require.Equal(t, IntentDefinition, ClassifyIntent("where is parseConfig defined"))
	require.Equal(t, IntentUsage, ClassifyIntent("who calls parseConfig"))
	require.Equal(t, IntentConceptual, ClassifyIntent("how does the indexer work?"))
	require.Equal(t, IntentKeyword, ClassifyIntent("parseConfig"))
}

func TestService_FusesAndDedupsByFile(t *testing.T) {
	sem := fakeSemantic{results: []EngineResult{
		{FilePath: "a.go", Name: "Foo", Rank: 0, CodeText: "func Foo() {}"},
		{FilePath: "b.go", Name: "Bar", Rank: 1, CodeText: "func Bar() {}"},
	}}
	lex := fakeLexical{results: []EngineResult{
		{FilePath: "a.go", Name: "Foo", Rank: 0, CodeText: "func Foo() {}"},
	}}

	svc := NewService(sem, lex, nil, nil, nil)
	result, err := svc.Search(context.Background(), "Foo", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)

	var foundA bool
	for _, h := range result.Hits {
		if h.FilePath == "a.go" {
			foundA = true
			require.Equal(t, SourceBoth, h.Source)
		}
	}
	require.True(t, foundA)
	require.Equal(t, float64(1), result.Hits[0].Score) // normalized: top result is 1.0
}

func TestService_FallsThroughWhenOneEngineNil(t *testing.T) {
	lex := fakeLexical{results: []EngineResult{
		{FilePath: "only.go", Name: "Only", Rank: 0},
	}}
	svc := NewService(nil, lex, nil, nil, nil)
	result, err := svc.Search(context.Background(), "Only", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, SourceLexical, result.Hits[0].Source)
}

func TestService_DomainBoostLiftsMatchingFile(t *testing.T) {
	sem := fakeSemantic{results: []EngineResult{
		{FilePath: "core/a.go", Name: "A", Rank: 0},
		{FilePath: "internal/b.go", Name: "B", Rank: 0},
	}}
	svc := NewService(sem, fakeLexical{}, nil, nil, nil)
	result, err := svc.Search(context.Background(), "x", Options{Limit: 10, DomainBoosts: map[string]float64{"internal/": 5.0}})
	require.NoError(t, err)
	require.Equal(t, "internal/b.go", result.Hits[0].FilePath)
}
