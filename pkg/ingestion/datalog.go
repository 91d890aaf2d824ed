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
)

// DatalogBuilder renders parsed entities into CozoScript mutation blocks
// matching the relations created by storage.EmbeddedBackend.EnsureSchema.
//
// Each entity kind becomes its own chained { ... } block using :put, so a
// full run's worth of mutations executes as a single script. Values are
// embedded as Go-quoted string/int literals (the same %q convention used
// throughout this package's query helpers) since these values originate
// from parsed source, not from an interactive query surface - the
// injection-hardening requirement applies to pkg/querybuilder, which
// mediates user-supplied search terms.
type DatalogBuilder struct{}

// NewDatalogBuilder creates a DatalogBuilder.
func NewDatalogBuilder() *DatalogBuilder {
	return &DatalogBuilder{}
}

// BuildMutationsWithTypes renders every entity kind from one parse run into
// a single chained CozoScript, ready for Backend.Execute.
func (b *DatalogBuilder) BuildMutationsWithTypes(
	files []FileEntity,
	functions []FunctionEntity,
	types []TypeEntity,
	defines []DefinesEdge,
	definesTypes []DefinesTypeEdge,
	calls []CallsEdge,
	imports []ImportEntity,
) string {
	var blocks []string

	if block := b.buildFileBlock(files); block != "" {
		blocks = append(blocks, block)
	}
	if block := b.buildFunctionBlocks(functions); block != "" {
		blocks = append(blocks, block)
	}
	if block := b.buildTypeBlocks(types); block != "" {
		blocks = append(blocks, block)
	}
	if block := b.buildDefinesBlock(defines); block != "" {
		blocks = append(blocks, block)
	}
	if block := b.buildDefinesTypeBlock(definesTypes); block != "" {
		blocks = append(blocks, block)
	}
	if block := b.buildCallsBlock(calls); block != "" {
		blocks = append(blocks, block)
	}
	if block := b.buildImportsBlock(imports); block != "" {
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, "\n")
}

func (b *DatalogBuilder) buildFileBlock(files []FileEntity) string {
	if len(files) == 0 {
		return ""
	}
	rows := make([]string, len(files))
	for i, f := range files {
		rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d]", f.ID, f.Path, f.Hash, f.Language, f.Size)
	}
	return fmt.Sprintf(
		"{ ?[id, path, hash, language, size] <- [%s] :put cie_file {id => path, hash, language, size} }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildFunctionBlocks(functions []FunctionEntity) string {
	if len(functions) == 0 {
		return ""
	}
	metaRows := make([]string, len(functions))
	codeRows := make([]string, 0, len(functions))
	for i, fn := range functions {
		metaRows[i] = fmt.Sprintf("[%q, %q, %q, %q, %q, %q, %d, %d, %d, %d]",
			fn.ID, string(fn.Kind), fn.Name, fn.Signature, fn.FilePath, fn.ClassOf,
			fn.StartLine, fn.EndLine, fn.StartCol, fn.EndCol)
		if fn.CodeText != "" {
			codeRows = append(codeRows, fmt.Sprintf("[%q, %q]", fn.ID, fn.CodeText))
		}
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"{ ?[id, kind, name, signature, file_path, class_of, start_line, end_line, start_col, end_col] <- [%s] "+
			":put cie_function {id => kind, name, signature, file_path, class_of, start_line, end_line, start_col, end_col} }",
		strings.Join(metaRows, ", "),
	))
	if len(codeRows) > 0 {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(
			"{ ?[function_id, code_text] <- [%s] :put cie_function_code {function_id => code_text} }",
			strings.Join(codeRows, ", "),
		))
	}
	return sb.String()
}

func (b *DatalogBuilder) buildTypeBlocks(types []TypeEntity) string {
	if len(types) == 0 {
		return ""
	}
	metaRows := make([]string, len(types))
	codeRows := make([]string, 0, len(types))
	for i, t := range types {
		metaRows[i] = fmt.Sprintf("[%q, %q, %q, %q, %q, %d, %d, %d, %d]",
			t.ID, t.Name, t.Kind, t.FilePath, t.Extends, t.StartLine, t.EndLine, t.StartCol, t.EndCol)
		if t.CodeText != "" {
			codeRows = append(codeRows, fmt.Sprintf("[%q, %q]", t.ID, t.CodeText))
		}
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"{ ?[id, name, kind, file_path, extends, start_line, end_line, start_col, end_col] <- [%s] "+
			":put cie_type {id => name, kind, file_path, extends, start_line, end_line, start_col, end_col} }",
		strings.Join(metaRows, ", "),
	))
	if len(codeRows) > 0 {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(
			"{ ?[type_id, code_text] <- [%s] :put cie_type_code {type_id => code_text} }",
			strings.Join(codeRows, ", "),
		))
	}
	return sb.String()
}

func (b *DatalogBuilder) buildDefinesBlock(defines []DefinesEdge) string {
	if len(defines) == 0 {
		return ""
	}
	rows := make([]string, len(defines))
	for i, d := range defines {
		rows[i] = fmt.Sprintf("[%q, %q, %q]", d.ID, d.FileID, d.FunctionID)
	}
	return fmt.Sprintf(
		"{ ?[id, file_id, function_id] <- [%s] :put cie_defines {id => file_id, function_id} }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildDefinesTypeBlock(definesTypes []DefinesTypeEdge) string {
	if len(definesTypes) == 0 {
		return ""
	}
	rows := make([]string, len(definesTypes))
	for i, d := range definesTypes {
		rows[i] = fmt.Sprintf("[%q, %q, %q]", d.ID, d.FileID, d.TypeID)
	}
	return fmt.Sprintf(
		"{ ?[id, file_id, type_id] <- [%s] :put cie_defines_type {id => file_id, type_id} }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildCallsBlock(calls []CallsEdge) string {
	if len(calls) == 0 {
		return ""
	}
	rows := make([]string, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = GenerateCallID(c.CallerID, c.CalleeID)
		}
		rows[i] = fmt.Sprintf("[%q, %q, %q]", id, c.CallerID, c.CalleeID)
	}
	return fmt.Sprintf(
		"{ ?[id, caller_id, callee_id] <- [%s] :put cie_calls {id => caller_id, callee_id} }",
		strings.Join(rows, ", "),
	)
}

func (b *DatalogBuilder) buildImportsBlock(imports []ImportEntity) string {
	if len(imports) == 0 {
		return ""
	}
	rows := make([]string, len(imports))
	for i, imp := range imports {
		rows[i] = fmt.Sprintf("[%q, %q, %q, %q, %d]", imp.ID, imp.FilePath, imp.ImportPath, imp.Alias, imp.StartLine)
	}
	return fmt.Sprintf(
		"{ ?[id, file_path, import_path, alias, start_line] <- [%s] :put cie_import {id => file_path, import_path, alias, start_line} }",
		strings.Join(rows, ", "),
	)
}

// DeletionSet names the IDs to remove from each relation during an
// incremental reindex (file changed or removed).
type DeletionSet struct {
	FileIDs            []string
	FunctionIDs        []string
	TypeIDs            []string
	CallsEdgeIDs       []string
	DefinesEdgeIDs     []string
	DefinesTypeEdgeIDs []string
	ImportIDs          []string
}

// BuildDeletions renders a DeletionSet into a chained :rm CozoScript.
func (b *DatalogBuilder) BuildDeletions(d DeletionSet) string {
	var blocks []string

	if block := rmBlock("cie_calls", "id", d.CallsEdgeIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_defines", "id", d.DefinesEdgeIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_defines_type", "id", d.DefinesTypeEdgeIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_import", "id", d.ImportIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_function", "id", d.FunctionIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_function_code", "function_id", d.FunctionIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_function_embedding", "function_id", d.FunctionIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_type", "id", d.TypeIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_type_code", "type_id", d.TypeIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_type_embedding", "type_id", d.TypeIDs); block != "" {
		blocks = append(blocks, block)
	}
	if block := rmBlock("cie_file", "id", d.FileIDs); block != "" {
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, "\n")
}

func rmBlock(relation, keyCol string, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	rows := make([]string, len(ids))
	for i, id := range ids {
		rows[i] = fmt.Sprintf("[%q]", id)
	}
	return fmt.Sprintf(
		"{ ?[%s] <- [%s] :rm %s {%s} }",
		keyCol, strings.Join(rows, ", "), relation, keyCol,
	)
}

// ValidateEntities checks referential consistency of a parse run before it
// is committed to storage: defines edges must reference a file and a
// function present in the same batch, and calls edges a caller present in
// the batch (callees are not checked).
func ValidateEntities(files []FileEntity, functions []FunctionEntity, defines []DefinesEdge, calls []CallsEdge) error {
	fileIDs := make(map[string]bool, len(files))
	for _, f := range files {
		if f.ID == "" {
			return fmt.Errorf("file entity with empty ID: path=%q", f.Path)
		}
		fileIDs[f.ID] = true
	}

	functionIDs := make(map[string]bool, len(functions))
	for _, fn := range functions {
		if fn.ID == "" {
			return fmt.Errorf("function entity with empty ID: name=%q file=%q", fn.Name, fn.FilePath)
		}
		functionIDs[fn.ID] = true
	}

	for _, d := range defines {
		if !fileIDs[d.FileID] {
			return fmt.Errorf("defines edge %q references unknown file %q", d.ID, d.FileID)
		}
		if !functionIDs[d.FunctionID] {
			return fmt.Errorf("defines edge %q references unknown function %q", d.ID, d.FunctionID)
		}
	}

	for _, c := range calls {
		if !functionIDs[c.CallerID] {
			return fmt.Errorf("calls edge references unknown caller %q", c.CallerID)
		}
		// Callees may legitimately reference functions outside this batch
		// (cross-file calls resolved against the global index); only the
		// caller must be local to the batch being validated.
	}

	return nil
}
