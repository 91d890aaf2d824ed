// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/cie/internal/search"
)

// HybridSearchArgs holds arguments for the fused semantic+lexical search.
type HybridSearchArgs struct {
	Query          string
	Limit          int
	Role           string
	PathPattern    string
	EmbeddingURL   string
	EmbeddingModel string
	Expand         bool
}

// querierSemanticEngine adapts SemanticSearch's HNSW retrieval to
// search.SemanticEngine.
type querierSemanticEngine struct {
	client Querier
	args   HybridSearchArgs
}

func (e querierSemanticEngine) Search(ctx context.Context, query string, limit int) ([]search.EngineResult, error) {
	embedding, err := generateEmbedding(ctx, e.args.EmbeddingURL, e.args.EmbeddingModel, query)
	if err != nil {
		return nil, err
	}
	result, err := executeHNSWQuery(ctx, e.client, embedding, SemanticSearchArgs{
		Query: query, Limit: limit, Role: e.args.Role, PathPattern: e.args.PathPattern,
	})
	if err != nil {
		return nil, err
	}
	rows := postFilterByPath(result.Rows, e.args.PathPattern, e.args.Role, query, "", true)
	out := make([]search.EngineResult, 0, len(rows))
	for i, row := range rows {
		if i >= limit {
			break
		}
		if len(row) < 5 {
			continue
		}
		er := search.EngineResult{
			Name:      AnyToString(row[0]),
			FilePath:  AnyToString(row[1]),
			Signature: AnyToString(row[2]),
			Rank:      i,
		}
		if len(row) > 5 {
			er.CodeText = AnyToString(row[5])
		}
		out = append(out, er)
	}
	return out, nil
}

// querierLexicalEngine adapts SearchText's regex retrieval to
// search.LexicalEngine.
type querierLexicalEngine struct {
	client Querier
	args   HybridSearchArgs
}

func (e querierLexicalEngine) Search(ctx context.Context, query string, limit int) ([]search.EngineResult, error) {
	terms := ExtractKeyTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	pattern := "(?i)(" + strings.Join(terms, "|") + ")"

	script := fmt.Sprintf(
		"?[file_path, name, signature, start_line] := *cie_function { file_path, name, signature, start_line }, regex_matches(name, %q) :limit %d",
		pattern, limit,
	)
	result, err := e.client.Query(ctx, script)
	if err != nil {
		return nil, err
	}

	out := make([]search.EngineResult, 0, len(result.Rows))
	for i, row := range result.Rows {
		if len(row) < 4 {
			continue
		}
		out = append(out, search.EngineResult{
			FilePath:  AnyToString(row[0]),
			Name:      AnyToString(row[1]),
			Signature: AnyToString(row[2]),
			Rank:      i,
		})
	}
	return out, nil
}

// querierPopularityEngine counts distinct callers of a named entity for
// the hybrid pipeline's popular-entity boost.
type querierPopularityEngine struct {
	client Querier
}

func (e querierPopularityEngine) IncomingCallCount(ctx context.Context, name string) (int, error) {
	script := fmt.Sprintf(
		`?[count(caller_id)] := *cie_calls { caller_id, callee_id }, *cie_function { id: callee_id, name: callee_name }, callee_name = %q`,
		name,
	)
	result, err := e.client.Query(ctx, script)
	if err != nil || len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return 0, err
	}
	switch v := result.Rows[0][0].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, nil
	}
}

// HybridSearch runs intent-classified, fused semantic+lexical search:
// parallel retrieval from the HNSW vector index and regex name search,
// reciprocal-rank fusion, heuristic boosting, and snippet resolution.
// Falls back gracefully to whichever engine is available if the other
// fails or the embedding provider is unreachable.
func HybridSearch(ctx context.Context, client Querier, args HybridSearchArgs) (*ToolResult, error) {
	if args.Query == "" {
		return NewError("Error: 'query' is required"), nil
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}

	svc := search.NewService(
		querierSemanticEngine{client: client, args: args},
		querierLexicalEngine{client: client, args: args},
		querierPopularityEngine{client: client},
		search.NewEdlibExpander(),
		nil,
	)

	result, err := svc.Search(ctx, args.Query, search.Options{
		Limit:  args.Limit,
		Expand: args.Expand,
	})
	if err != nil {
		return NewError(fmt.Sprintf("Hybrid search error: %v", err)), nil
	}

	return NewResult(formatHybridResult(result, args.Query)), nil
}

func formatHybridResult(result search.Result, query string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔀 **Hybrid search** for '%s' (intent: %s, semantic: %d, lexical: %d, %dms):\n\n",
		query, result.Meta.Intent, result.Meta.SemanticCount, result.Meta.LexicalCount, result.Meta.ProcessingTimeMs)

	if len(result.Meta.ExpandedTerms) > 0 {
		fmt.Fprintf(&sb, "_Expanded terms: %s_\n\n", strings.Join(result.Meta.ExpandedTerms, ", "))
	}

	for i, hit := range result.Hits {
		fmt.Fprintf(&sb, "%d. **%s** (%s, score %.2f)\n", i+1, hit.Name, hit.Source, hit.Score)
		fmt.Fprintf(&sb, "   📁 %s:%d\n", hit.FilePath, hit.StartLine)
		if hit.Signature != "" {
			fmt.Fprintf(&sb, "   📝 `%s`\n", hit.Signature)
		}
		if hit.Snippet != "" {
			sb.WriteString("   ```\n")
			for _, line := range strings.Split(hit.Snippet, "\n") {
				sb.WriteString("   " + line + "\n")
			}
			sb.WriteString("   ```\n")
		}
		sb.WriteString("\n")
	}

	if len(result.Hits) == 0 {
		sb.WriteString("No results found.\n")
	}

	return sb.String()
}
