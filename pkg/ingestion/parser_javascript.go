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
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// JAVASCRIPT EXTRACTION (shared by the JS and TS walkers)
// =============================================================================

// extractJSFunction extracts a plain "function name(...) {...}" declaration.
func (p *TreeSitterParser) extractJSFunction(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	return p.buildJSFunctionEntity(node, name, content, filePath)
}

// extractJSArrowOrExpressionFunction extracts a function assigned to a
// variable: "const name = (...) => {...}" or "const name = function() {}".
func (p *TreeSitterParser) extractJSArrowOrExpressionFunction(nameNode, valueNode *sitter.Node, content []byte, filePath string) *FunctionEntity {
	if nameNode == nil || valueNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	return p.buildJSFunctionEntity(valueNode, name, content, filePath)
}

// extractJSMethod extracts a class method_definition.
func (p *TreeSitterParser) extractJSMethod(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	fn := p.buildJSFunctionEntity(node, name, content, filePath)
	if fn != nil {
		fn.Kind = EntityKindMethod
	}
	return fn
}

// extractJSAnonymousArrow extracts an arrow function that is not bound to a
// variable (passed inline as a callback, e.g. array.map(x => x * 2)). It is
// given a synthetic, position-stable name so it can still be stored.
func (p *TreeSitterParser) extractJSAnonymousArrow(node *sitter.Node, content []byte, filePath string, counter int) *FunctionEntity {
	name := fmt.Sprintf("$anon_%d", counter)
	return p.buildJSFunctionEntity(node, name, content, filePath)
}

// buildJSFunctionEntity assembles a FunctionEntity for any JS/TS function-like
// node (function_declaration, arrow_function, function_expression, method_definition).
func (p *TreeSitterParser) buildJSFunctionEntity(node *sitter.Node, name string, content []byte, filePath string) *FunctionEntity {
	signature := jsSignature(node, content)

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))

	id := GenerateFunctionID(filePath, name, signature, startLine, endLine, startCol, endCol)

	return &FunctionEntity{
		ID:        id,
		Kind:      EntityKindFunction,
		Name:      name,
		Signature: signature,
		CodeText:  codeText,
		FilePath:  filePath,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// jsSignature reconstructs the function header (up to, but excluding, the
// body) for any JS/TS function-like node.
func jsSignature(node *sitter.Node, content []byte) string {
	body := node.ChildByFieldName("body")
	end := node.EndByte()
	if body != nil {
		end = body.StartByte()
	}
	sig := string(content[node.StartByte():end])
	return strings.TrimRight(sig, " \t\r\n=>")
}

// extractJSCalls finds call_expression nodes inside fn's byte range and
// resolves them against other functions known in the same file.
func (p *TreeSitterParser) extractJSCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	var calls []CallsEdge

	fnNode := findNodeByByteRange(rootNode, fn)
	if fnNode == nil {
		return calls
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" {
			if fnChild := n.ChildByFieldName("function"); fnChild != nil {
				callee := string(content[fnChild.StartByte():fnChild.EndByte()])
				if idx := strings.LastIndex(callee, "."); idx >= 0 {
					callee = callee[idx+1:]
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

// findNodeByByteRange locates the node whose byte range exactly matches fn's
// recorded start/end lines and columns, reconstructed from 1-based storage.
func findNodeByByteRange(node *sitter.Node, fn FunctionEntity) *sitter.Node {
	if node == nil {
		return nil
	}
	if int(node.StartPoint().Row)+1 == fn.StartLine &&
		int(node.StartPoint().Column)+1 == fn.StartCol &&
		int(node.EndPoint().Row)+1 == fn.EndLine &&
		int(node.EndPoint().Column)+1 == fn.EndCol {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findNodeByByteRange(node.Child(i), fn); found != nil {
			return found
		}
	}
	return nil
}
