// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"regexp"
	"strings"
)

const maxSnippetLines = 6

var (
	classDeclPattern     = regexp.MustCompile(`(?m)^\s*(type\s+\w+\s+struct|class\s+\w+)`)
	interfaceDeclPattern = regexp.MustCompile(`(?m)^\s*(type\s+\w+\s+interface|interface\s+\w+)`)
)

// resolveSnippet picks a snippet for a fused hit following the
// documented priority: the lexical match's own line, then the entity's
// signature if it looks like a function, then a class declaration line,
// then an interface line, capped to a handful of lines.
func resolveSnippet(h Hit, lexicalLine string) string {
	if lexicalLine != "" {
		return capLines(lexicalLine, maxSnippetLines)
	}
	if h.Signature != "" && looksLikeFunctionSignature(h.Signature) {
		return h.Signature
	}
	if loc := classDeclPattern.FindString(h.Snippet); loc != "" {
		return strings.TrimSpace(loc)
	}
	if loc := interfaceDeclPattern.FindString(h.Snippet); loc != "" {
		return strings.TrimSpace(loc)
	}
	return capLines(h.Snippet, maxSnippetLines)
}

func looksLikeFunctionSignature(sig string) bool {
	return strings.Contains(sig, "(") && strings.Contains(sig, ")")
}

func capLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
