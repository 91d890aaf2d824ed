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

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// PYTHON PARSER
// =============================================================================

// pyParseResult holds everything extracted from one Python file.
type pyParseResult struct {
	Functions []FunctionEntity
	Types     []TypeEntity
	Calls     []CallsEdge
}

// parsePythonAST extracts functions, classes, and calls from Python source.
func (p *TreeSitterParser) parsePythonAST(content []byte, filePath string) (*pyParseResult, error) {
	tree, err := p.pyParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.python.syntax_errors",
				"path", filePath,
				"error_count", errorCount,
			)
		}
	}

	result := &pyParseResult{}
	funcNameToID := make(map[string]string)

	p.walkPythonNode(rootNode, content, filePath, "", result, funcNameToID)

	for _, fn := range result.Functions {
		result.Calls = append(result.Calls, p.extractPythonCalls(rootNode, content, fn, funcNameToID)...)
	}

	return result, nil
}

// walkPythonNode recursively walks the Python AST, tracking the enclosing
// class name (if any) so methods can be recorded as "ClassName.method".
func (p *TreeSitterParser) walkPythonNode(node *sitter.Node, content []byte, filePath, className string, result *pyParseResult, funcNameToID map[string]string) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_definition":
		fn := p.extractPythonFunction(node, content, filePath, className)
		if fn != nil {
			result.Functions = append(result.Functions, *fn)
			funcNameToID[fn.Name] = fn.ID
		}
		// Recurse into the body to catch methods nested in local closures,
		// but without inheriting the class prefix (they aren't methods).
		if body := node.ChildByFieldName("body"); body != nil {
			p.walkPythonNode(body, content, filePath, "", result, funcNameToID)
		}
		return

	case "class_definition":
		te := p.extractPythonClass(node, content, filePath)
		if te != nil {
			result.Types = append(result.Types, *te)
		}
		nameNode := node.ChildByFieldName("name")
		name := ""
		if nameNode != nil {
			name = string(content[nameNode.StartByte():nameNode.EndByte()])
		}
		if body := node.ChildByFieldName("body"); body != nil {
			p.walkPythonNode(body, content, filePath, name, result, funcNameToID)
		}
		return

	case "decorated_definition":
		inner := node.ChildByFieldName("definition")
		p.walkPythonNode(inner, content, filePath, className, result, funcNameToID)
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkPythonNode(node.Child(i), content, filePath, className, result, funcNameToID)
	}
}

// extractPythonFunction builds a FunctionEntity from a function_definition node.
// When className is non-empty, the function is a method and its recorded
// name is prefixed "ClassName.method".
func (p *TreeSitterParser) extractPythonFunction(node *sitter.Node, content []byte, filePath, className string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	simpleName := string(content[nameNode.StartByte():nameNode.EndByte()])

	name := simpleName
	kind := EntityKindFunction
	if className != "" {
		name = className + "." + simpleName
		kind = EntityKindMethod
	}

	signature := pythonSignature(node, content)

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))

	id := GenerateFunctionID(filePath, name, signature, startLine, endLine, startCol, endCol)

	return &FunctionEntity{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Signature: signature,
		CodeText:  codeText,
		FilePath:  filePath,
		ClassOf:   className,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// pythonSignature reconstructs the "def name(params) -> ret" header from a
// function_definition node, excluding its body.
func pythonSignature(node *sitter.Node, content []byte) string {
	body := node.ChildByFieldName("body")
	end := node.EndByte()
	if body != nil {
		end = body.StartByte()
	}
	sig := string(content[node.StartByte():end])
	return strings.TrimRight(sig, " \t\r\n:")
}

// extractPythonClass builds a TypeEntity from a class_definition node.
func (p *TreeSitterParser) extractPythonClass(node *sitter.Node, content []byte, filePath string) *TypeEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	extends := ""
	if superclasses := node.ChildByFieldName("superclasses"); superclasses != nil {
		text := string(content[superclasses.StartByte():superclasses.EndByte()])
		extends = strings.Trim(text, "()")
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))

	id := GenerateTypeID(filePath, name, startLine, endLine)

	return &TypeEntity{
		ID:        id,
		Name:      name,
		Kind:      "class",
		FilePath:  filePath,
		Extends:   extends,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// extractPythonCalls finds "call" nodes within fn's body and resolves them
// against functions known in the same file.
func (p *TreeSitterParser) extractPythonCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge
	fnNode := findNodeAtRange(rootNode, int(fn.StartLine)-1, int(fn.EndLine)-1)
	if fnNode == nil {
		return calls
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call" {
			if fnChild := n.ChildByFieldName("function"); fnChild != nil {
				callee := string(content[fnChild.StartByte():fnChild.EndByte()])
				if strings.Contains(callee, ".") {
					parts := strings.Split(callee, ".")
					callee = parts[len(parts)-1]
				}
				if calleeID, ok := funcNameToID[callee]; ok && calleeID != fn.ID {
					calls = append(calls, CallsEdge{CallerID: fn.ID, CalleeID: calleeID})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(fnNode)

	return calls
}

// findNodeAtRange finds the deepest node whose row range matches [startRow, endRow].
func findNodeAtRange(node *sitter.Node, startRow, endRow int) *sitter.Node {
	if node == nil {
		return nil
	}
	if int(node.StartPoint().Row) == startRow && int(node.EndPoint().Row) == endRow {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findNodeAtRange(node.Child(i), startRow, endRow); found != nil {
			return found
		}
	}
	return nil
}
