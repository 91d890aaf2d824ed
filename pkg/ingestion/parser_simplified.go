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
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// Parser is a regex/line-scanning fallback implementation of CodeParser,
// used when Tree-sitter grammars are unavailable or the auto parser mode
// declines to build a TreeSitterParser. It trades precision (no real AST,
// no nested scope awareness) for zero CGO/grammar dependencies.
type Parser struct {
	logger *slog.Logger

	maxCodeTextSize int64
	truncatedCount  int64 // atomic
}

// NewParser creates a simplified regex-based parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:          logger,
		maxCodeTextSize: 100 * 1024,
	}
}

// SetMaxCodeTextSize implements CodeParser.
func (p *Parser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeTextSize = size
	}
}

// GetTruncatedCount implements CodeParser.
func (p *Parser) GetTruncatedCount() int {
	return int(atomic.LoadInt64(&p.truncatedCount))
}

// ResetTruncatedCount implements CodeParser.
func (p *Parser) ResetTruncatedCount() {
	atomic.StoreInt64(&p.truncatedCount, 0)
}

func (p *Parser) truncateCodeText(codeText string) string {
	if p.maxCodeTextSize <= 0 || int64(len(codeText)) <= p.maxCodeTextSize {
		return codeText
	}
	atomic.AddInt64(&p.truncatedCount, 1)
	return codeText[:p.maxCodeTextSize]
}

// ParseFile implements CodeParser using line-oriented regex scanning instead
// of a real grammar.
func (p *Parser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
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
		result.Functions, result.Types = p.parseGoSimplified(string(content), fileInfo.Path)
	case "python":
		result.Functions, result.Types = p.parsePythonSimplified(string(content), fileInfo.Path)
	case "typescript", "tsx", "javascript", "jsx":
		result.Functions, result.Types = p.parseJSSimplified(string(content), fileInfo.Path)
	case "protobuf", "proto":
		result.Functions, result.Calls = parseProtobufContent(string(content), fileInfo.Path, p.truncateCodeText)
	default:
		p.logger.Debug("parser.simplified.unsupported_language",
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

var (
	goFuncRe    = regexp.MustCompile(`^\s*func\s+(\([^)]*\)\s*)?([A-Za-z_]\w*)\s*\(`)
	goTypeRe    = regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+(struct|interface)\s*\{`)
	pyFuncRe    = regexp.MustCompile(`^(\s*)(async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyClassRe   = regexp.MustCompile(`^(\s*)class\s+([A-Za-z_]\w*)\s*[:(]`)
	jsFuncRe    = regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(async\s+)?function\s*\*?\s*([A-Za-z_]\w*)\s*\(`)
	jsArrowRe   = regexp.MustCompile(`^\s*(export\s+)?(const|let|var)\s+([A-Za-z_]\w*)\s*=\s*(async\s*)?\(`)
	jsClassRe   = regexp.MustCompile(`^\s*(export\s+)?(default\s+)?class\s+([A-Za-z_]\w*)`)
	tsInterface = regexp.MustCompile(`^\s*(export\s+)?interface\s+([A-Za-z_]\w*)`)
)

// parseGoSimplified extracts top-level functions and struct/interface types
// from Go source by scanning lines and matching braces, without building an AST.
func (p *Parser) parseGoSimplified(content, filePath string) ([]FunctionEntity, []TypeEntity) {
	lines := strings.Split(content, "\n")
	var functions []FunctionEntity
	var types []TypeEntity

	for i, line := range lines {
		if m := goFuncRe.FindStringSubmatch(line); m != nil {
			name := m[2]
			endIdx := findBraceBlockEnd(lines, i)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			sig := strings.TrimSpace(strings.SplitN(line, "{", 2)[0])
			functions = append(functions, FunctionEntity{
				ID:        GenerateFunctionID(filePath, name, sig, startLine, endLine, 1, 1),
				Kind:      EntityKindFunction,
				Name:      name,
				Signature: sig,
				CodeText:  p.truncateCodeText(codeText),
				FilePath:  filePath,
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
		}
		if m := goTypeRe.FindStringSubmatch(line); m != nil {
			name, kind := m[1], m[2]
			endIdx := findBraceBlockEnd(lines, i)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			if kind == "interface" {
				kind = "interface"
			} else {
				kind = "class"
			}
			types = append(types, TypeEntity{
				ID:        GenerateTypeID(filePath, name, startLine, endLine),
				Name:      name,
				Kind:      kind,
				FilePath:  filePath,
				CodeText:  p.truncateCodeText(codeText),
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
		}
	}

	return functions, types
}

// parsePythonSimplified extracts top-level and class-method functions by
// indentation, and classes by their "class Name:" header.
func (p *Parser) parsePythonSimplified(content, filePath string) ([]FunctionEntity, []TypeEntity) {
	lines := strings.Split(content, "\n")
	var functions []FunctionEntity
	var types []TypeEntity

	var currentClass string
	var currentClassIndent int

	for i, line := range lines {
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			currentClass = m[2]
			currentClassIndent = len(m[1])
			endIdx := findIndentBlockEnd(lines, i, currentClassIndent)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			types = append(types, TypeEntity{
				ID:        GenerateTypeID(filePath, currentClass, startLine, endLine),
				Name:      currentClass,
				Kind:      "class",
				FilePath:  filePath,
				CodeText:  p.truncateCodeText(codeText),
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
			continue
		}

		if m := pyFuncRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			simpleName := m[3]
			name := simpleName
			kind := EntityKindFunction
			if currentClass != "" && indent > currentClassIndent {
				name = currentClass + "." + simpleName
				kind = EntityKindMethod
			} else {
				currentClass = ""
			}
			endIdx := findIndentBlockEnd(lines, i, indent)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			sig := strings.TrimRight(strings.TrimSpace(line), ":")
			functions = append(functions, FunctionEntity{
				ID:        GenerateFunctionID(filePath, name, sig, startLine, endLine, 1, 1),
				Kind:      kind,
				Name:      name,
				Signature: sig,
				CodeText:  p.truncateCodeText(codeText),
				FilePath:  filePath,
				ClassOf:   strings.TrimSuffix(name, "."+simpleName),
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
		}
	}

	return functions, types
}

// parseJSSimplified extracts function declarations, arrow-function bindings,
// classes, and TypeScript interfaces from JS/TS/JSX/TSX source.
func (p *Parser) parseJSSimplified(content, filePath string) ([]FunctionEntity, []TypeEntity) {
	lines := strings.Split(content, "\n")
	var functions []FunctionEntity
	var types []TypeEntity

	for i, line := range lines {
		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			name := m[4]
			endIdx := findBraceBlockEnd(lines, i)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			sig := strings.TrimSpace(strings.SplitN(line, "{", 2)[0])
			functions = append(functions, FunctionEntity{
				ID:        GenerateFunctionID(filePath, name, sig, startLine, endLine, 1, 1),
				Kind:      EntityKindFunction,
				Name:      name,
				Signature: sig,
				CodeText:  p.truncateCodeText(codeText),
				FilePath:  filePath,
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
			continue
		}

		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			name := m[3]
			endIdx := findBraceBlockEnd(lines, i)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			sig := strings.TrimSpace(strings.SplitN(line, "{", 2)[0])
			functions = append(functions, FunctionEntity{
				ID:        GenerateFunctionID(filePath, name, sig, startLine, endLine, 1, 1),
				Kind:      EntityKindFunction,
				Name:      name,
				Signature: sig,
				CodeText:  p.truncateCodeText(codeText),
				FilePath:  filePath,
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
			continue
		}

		if m := jsClassRe.FindStringSubmatch(line); m != nil {
			name := m[3]
			endIdx := findBraceBlockEnd(lines, i)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			types = append(types, TypeEntity{
				ID:        GenerateTypeID(filePath, name, startLine, endLine),
				Name:      name,
				Kind:      "class",
				FilePath:  filePath,
				CodeText:  p.truncateCodeText(codeText),
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
			continue
		}

		if m := tsInterface.FindStringSubmatch(line); m != nil {
			name := m[2]
			endIdx := findBraceBlockEnd(lines, i)
			codeText := strings.Join(lines[i:endIdx], "\n")
			startLine, endLine := i+1, endIdx
			types = append(types, TypeEntity{
				ID:        GenerateTypeID(filePath, name, startLine, endLine),
				Name:      name,
				Kind:      "interface",
				FilePath:  filePath,
				CodeText:  p.truncateCodeText(codeText),
				StartLine: startLine,
				EndLine:   endLine,
				StartCol:  1,
				EndCol:    1,
			})
		}
	}

	return functions, types
}

// findBraceBlockEnd returns the 1-based line number where the brace block
// opened on lines[startIdx] closes, by counting braces across following lines.
func findBraceBlockEnd(lines []string, startIdx int) int {
	braceCount := 0
	started := false
	for i := startIdx; i < len(lines); i++ {
		braceCount += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if !started && strings.Contains(lines[i], "{") {
			started = true
		}
		if started && braceCount == 0 {
			return i + 1
		}
	}
	return len(lines)
}

// findIndentBlockEnd returns the 1-based line number where an indented
// Python block (starting strictly deeper than headerIndent) ends.
func findIndentBlockEnd(lines []string, startIdx, headerIndent int) int {
	for i := startIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t\r")
		if trimmed == "" {
			continue
		}
		indent := len(lines[i]) - len(strings.TrimLeft(lines[i], " \t"))
		if indent <= headerIndent {
			return i
		}
	}
	return len(lines)
}
