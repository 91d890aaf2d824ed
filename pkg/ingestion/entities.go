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

package ingestion

import "time"

// RepoSource identifies where a project's source lives.
type RepoSource struct {
	// Type is "git_url" or "local_path".
	Type string
	// Value is the URL or filesystem path.
	Value string
}

// ConcurrencyConfig bounds the worker pools used by the pipeline.
type ConcurrencyConfig struct {
	ParseWorkers int
	EmbedWorkers int
}

// IngestionConfig holds all tunables for a LocalPipeline run.
type IngestionConfig struct {
	ParserMode        ParserMode
	EmbeddingProvider string
	MaxFileSizeBytes  int64
	MaxCodeTextBytes  int64
	ExcludeGlobs      []string
	Concurrency       ConcurrencyConfig
	LocalDataDir      string
	LocalEngine       string
	CheckpointPath    string

	// BatchTargetMutations is the Batcher's target mutation count per batch.
	BatchTargetMutations int
	// WriteMode is "bulk" or "per_statement".
	WriteMode string
}

// DefaultConfig returns sensible defaults, matching the values documented
// in doc.go.
func DefaultConfig() IngestionConfig {
	return IngestionConfig{
		ParserMode:        ParserModeAuto,
		EmbeddingProvider: "mock",
		MaxFileSizeBytes:  1024 * 1024,
		MaxCodeTextBytes:  100 * 1024,
		ExcludeGlobs: []string{
			"node_modules/**",
			".git/**",
			"vendor/**",
			"dist/**",
			"build/**",
		},
		Concurrency: ConcurrencyConfig{
			ParseWorkers: 4,
			EmbedWorkers: 8,
		},
		LocalEngine:          "sqlite",
		BatchTargetMutations: 2000,
		WriteMode:            "bulk",
	}
}

// Config is the top-level configuration for a single indexing run.
type Config struct {
	ProjectID       string
	RepoSource      RepoSource
	IngestionConfig IngestionConfig
}

// RetryConfig parameterizes exponential backoff for transient failures
// (embedding calls, batched writes).
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// EntityKind is the closed set of CodeEntity tagged variants (spec §3.1).
type EntityKind string

const (
	EntityKindFunction  EntityKind = "function"
	EntityKindMethod    EntityKind = "method"
	EntityKindClass     EntityKind = "class"
	EntityKindInterface EntityKind = "interface"
	EntityKindTypeAlias EntityKind = "type_alias"
	EntityKindVariable  EntityKind = "variable"
)

// FileEntity is the persisted File record (spec §3.1). It is distinct
// from FileInfo (repo_loader.go), which is the transient scan-time record
// produced while walking the repository tree.
type FileEntity struct {
	ID        string
	Path      string
	Language  string
	Hash      string
	Size      int64
	IndexedAt time.Time
}

// FunctionEntity represents a function or method discovered during
// parsing. Kind distinguishes "function" from "method" (methods carry a
// non-empty ClassOf, the name of their receiver/class).
type FunctionEntity struct {
	ID        string
	Kind      EntityKind
	Name      string
	Signature string
	CodeText  string
	FilePath  string
	ClassOf   string // non-empty for methods: receiver/owning type name
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
}

// TypeEntity represents a class, interface, type-alias, or struct
// discovered during parsing. Kind is one of EntityKindClass,
// EntityKindInterface, EntityKindTypeAlias, or "struct" for Go struct types.
type TypeEntity struct {
	ID        string
	Kind      string // "class", "interface", "type_alias", "struct"
	Name      string
	CodeText  string
	FilePath  string
	Extends   string // non-empty when the type declares a supertype
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
}

// VariableEntity represents a package/module-level variable or constant,
// the EntityKindVariable tagged variant.
type VariableEntity struct {
	ID         string
	Name       string
	FilePath   string
	StartLine  int
	EndLine    int
	Signature  string // declared type, if statically known
}

// DefinesEdge is the "contains" edge: file -> function.
type DefinesEdge struct {
	ID         string
	FileID     string
	FunctionID string
}

// DefinesTypeEdge is the "contains" edge: file -> type.
type DefinesTypeEdge struct {
	ID     string
	FileID string
	TypeID string
}

// CallsEdge is the "calls" edge: function -> function.
type CallsEdge struct {
	ID       string
	CallerID string
	CalleeID string
}

// ExtendsEdge is the "extends" edge: type -> type (class/interface
// inheritance).
type ExtendsEdge struct {
	ID       string
	ChildID  string
	ParentID string
}

// ImportEntity represents a single import statement within a file.
// It also doubles as the "imports" edge once resolved against a
// FileEntity (file -> imported package/module path).
type ImportEntity struct {
	ID         string
	FilePath   string
	ImportPath string
	Alias      string
	StartLine  int
}

// UnresolvedCall is a call edge whose callee could not be resolved to a
// known FunctionEntity at parse time (e.g. it targets an import). The
// CallResolver attempts to resolve these after all files in a run have
// been parsed.
type UnresolvedCall struct {
	CallerID     string
	CalleeName   string
	CalleePrefix string // package/module alias used in the call, if any
	FilePath     string
	Line         int
}

// ParseResult holds everything CodeParser.ParseFile extracts from one
// source file, including the File record itself and its "contains"
// edges into the functions/types discovered in it.
type ParseResult struct {
	File            FileEntity
	Functions       []FunctionEntity
	Types           []TypeEntity
	Variables       []VariableEntity
	Defines         []DefinesEdge
	DefinesTypes    []DefinesTypeEdge
	Calls           []CallsEdge
	Imports         []ImportEntity
	UnresolvedCalls []UnresolvedCall
	PackageName     string
}
