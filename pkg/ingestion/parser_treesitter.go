// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterParser extracts entities from source files using Tree-sitter
// grammars. One parser instance is reused across files of the same
// language; each language gets its own *sitter.Parser since go-tree-sitter
// parsers are not safe to share across grammars.
type TreeSitterParser struct {
	goParser *sitter.Parser
	tsParser *sitter.Parser // also used for plain JavaScript
	pyParser *sitter.Parser

	logger *slog.Logger

	maxCodeTextSize int64
	truncatedCount  int64 // atomic
}

// NewTreeSitterParser creates a parser with Go, TypeScript/JavaScript, and
// Python grammars loaded. It never returns nil: when a grammar fails to
// load the corresponding parser field is left unset and ParseFile falls
// back to returning empty results for that language.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}

	goP := sitter.NewParser()
	goP.SetLanguage(golang.GetLanguage())

	tsP := sitter.NewParser()
	tsP.SetLanguage(typescript.GetLanguage())

	pyP := sitter.NewParser()
	pyP.SetLanguage(python.GetLanguage())

	return &TreeSitterParser{
		goParser:        goP,
		tsParser:        tsP,
		pyParser:        pyP,
		logger:          logger,
		maxCodeTextSize: 100 * 1024,
	}
}

// SetMaxCodeTextSize implements CodeParser.
func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount implements CodeParser.
func (p *TreeSitterParser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

// ResetTruncatedCount implements CodeParser.
func (p *TreeSitterParser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}

// truncateCodeText caps codeText at maxCodeTextSize bytes, counting the
// truncation for reporting in IngestionResult.CodeTextTruncated.
func (p *TreeSitterParser) truncateCodeText(codeText string) string {
	if p.maxCodeTextSize <= 0 || int64(len(codeText)) <= p.maxCodeTextSize {
		return codeText
	}
	atomic.AddInt64(&p.truncatedCount, 1)
	return codeText[:p.maxCodeTextSize]
}

// ParseFile implements CodeParser. It reads the file from disk, builds the
// FileEntity record, dispatches to the language-specific extractor, and
// assembles the file's "defines" edges into its functions and types.
// Unsupported languages return an empty, non-error result so the pipeline
// can index polyglot repositories without failing the whole run.
func (p *TreeSitterParser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileInfo.FullPath, err)
	}

	hash := sha256.Sum256(content)
	fileEntity := FileEntity{
		ID:        GenerateFileID(fileInfo.Path),
		Path:      fileInfo.Path,
		Language:  fileInfo.Language,
		Hash:      hex.EncodeToString(hash[:]),
		Size:      fileInfo.Size,
		IndexedAt: time.Now(),
	}

	result := &ParseResult{File: fileEntity}

	switch fileInfo.Language {
	case "go":
		goResult, err := p.parseGoAST(content, fileInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("parse go file %s: %w", fileInfo.Path, err)
		}
		result.Functions = goResult.Functions
		result.Types = goResult.Types
		result.Calls = goResult.Calls
		result.Imports = goResult.Imports
		result.UnresolvedCalls = goResult.UnresolvedCalls
		result.PackageName = goResult.PackageName

	case "typescript", "tsx", "javascript", "jsx":
		functions, types, calls, err := p.parseTypeScriptAST(content, fileInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("parse %s file %s: %w", fileInfo.Language, fileInfo.Path, err)
		}
		result.Functions = functions
		result.Types = types
		result.Calls = calls

	case "python":
		pyResult, err := p.parsePythonAST(content, fileInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("parse python file %s: %w", fileInfo.Path, err)
		}
		result.Functions = pyResult.Functions
		result.Types = pyResult.Types
		result.Calls = pyResult.Calls

	case "protobuf", "proto":
		functions, calls := parseProtobufContent(string(content), fileInfo.Path, p.truncateCodeText)
		result.Functions = functions
		result.Calls = calls

	default:
		p.logger.Debug("parser.treesitter.unsupported_language",
			"path", fileInfo.Path, "language", fileInfo.Language)
	}

	for i := range result.Functions {
		result.Defines = append(result.Defines, DefinesEdge{
			ID:         GenerateDefinesID(fileEntity.ID, result.Functions[i].ID),
			FileID:     fileEntity.ID,
			FunctionID: result.Functions[i].ID,
		})
	}
	for i := range result.Types {
		result.DefinesTypes = append(result.DefinesTypes, DefinesTypeEdge{
			ID:     GenerateDefinesTypeID(fileEntity.ID, result.Types[i].ID),
			FileID: fileEntity.ID,
			TypeID: result.Types[i].ID,
		})
	}

	return result, nil
}

// countErrors counts ERROR nodes in a Tree-sitter tree, used to log how
// tolerant a parse was without failing the run (Tree-sitter always
// produces a tree, even for malformed source).
func countErrors(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}
