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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kraklabs/cie/internal/errors"
	"github.com/kraklabs/cie/internal/router"
	"github.com/kraklabs/cie/internal/telemetry"
	"github.com/kraklabs/cie/pkg/llm"
	"github.com/kraklabs/cie/pkg/storage"
	"github.com/kraklabs/cie/pkg/tools"
)

const (
	mcpVersion    = "1.0.0"
	mcpServerName = "cie"
)

// cieInstructions is sent to MCP clients on initialize, guiding agents on
// which CIE tool to reach for.
const cieInstructions = `CIE (Code Intelligence Engine) indexes a codebase into a queryable graph of
functions, types, call edges, and vector embeddings. Use these tools instead
of reading files blindly.

| Task | Tool |
|------|------|
| Find exact text | cie_grep |
| Regex search in code/signature/name | cie_search_text |
| Meaning-based search, one engine | cie_semantic_search |
| Meaning + keyword fused, ranked | cie_hybrid_search |
| Architectural Q&A (LLM narrative) | cie_analyze |
| Find function by name | cie_find_function |
| Who calls this function? | cie_find_callers |
| What does this function call? | cie_find_callees |
| Full call graph | cie_get_call_graph |
| Get function source | cie_get_function_code |
| Functions implementing an interface | cie_find_implementations |
| Directory overview | cie_directory_summary |
| List indexed files | cie_list_files |
| Check index health | cie_index_status |
| HTTP routes | cie_list_endpoints |
| gRPC services | cie_list_services |
| Raw CozoScript | cie_raw_query |
| Security audit (absence check) | cie_verify_absence |

cie_hybrid_search combines the vector index and a lexical name search with
reciprocal-rank fusion and intent-aware weighting; prefer it over
cie_semantic_search when you are not sure whether the query reads as a
definition, usage, or conceptual question. All queries must be in English —
the lexical and boost stages match against English identifiers.`

// jsonRPCRequest represents a JSON-RPC 2.0 request from the MCP client.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonRPCResponse represents a JSON-RPC 2.0 response to the MCP client.
type jsonRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type mcpServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type mcpCapabilities struct {
	Tools map[string]any `json:"tools,omitempty"`
}

type mcpInitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    mcpCapabilities `json:"capabilities"`
	ServerInfo      mcpServerInfo   `json:"serverInfo"`
	Instructions    string          `json:"instructions"`
}

// mcpTool describes a single tool exposed by the MCP server.
type mcpTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type mcpToolsListResult struct {
	Tools []mcpTool `json:"tools"`
}

type mcpToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// mcpToolResult is the result of a tool execution.
type mcpToolResult struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type mcpContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// mcpServer holds the state shared by every tool call this process serves.
//
// client is the Querier used by every tool built on the shared interface
// (embedded CozoDB or the remote Edge Cache HTTP client). httpClient is
// non-nil only in remote mode — cie_analyze and cie_index_status are
// defined against the concrete *tools.CIEClient in pkg/tools and are
// reported unavailable in embedded mode rather than faked. tracer is a
// no-op when telemetry is disabled in config, so handleToolCall never
// needs to branch on whether tracing is active.
type mcpServer struct {
	client         tools.Querier
	httpClient     *tools.CIEClient
	projectID      string
	mode           string
	embeddingURL   string
	embeddingModel string
	customRoles    map[string]tools.RolePattern
	tracer         *telemetry.Tracer
	metrics        *telemetry.SubsystemMetrics
}

// runMCPServer starts the CIE Model Context Protocol server: a JSON-RPC 2.0
// loop over stdin/stdout that exposes CIE's code-intelligence tools,
// including the fused hybrid search pipeline, to MCP-speaking agents.
//
// Parameters:
//   - configPath: path to .cie/project.yaml (empty string to auto-detect)
func runMCPServer(configPath string) {
	cwd, _ := os.Getwd()
	fmt.Fprintf(os.Stderr, "MCP Server CWD: %s\n", cwd)
	fmt.Fprintf(os.Stderr, "Config path arg: %q\n", configPath)

	cfg := loadMCPConfig(configPath)
	client, httpClient, mode, projectID := setupMCPClient(cfg, configPath)
	tracer := setupTracer(cfg)

	fmt.Fprintf(os.Stderr, "  Embedding configured: %s (%s)\n", cfg.Embedding.BaseURL, cfg.Embedding.Model)

	server := &mcpServer{
		client:         client,
		httpClient:     httpClient,
		projectID:      projectID,
		mode:           mode,
		embeddingURL:   cfg.Embedding.BaseURL,
		embeddingModel: cfg.Embedding.Model,
		customRoles:    cfg.Roles.Custom,
		tracer:         tracer,
		metrics:        telemetry.NewSubsystemMetrics("mcp"),
	}
	defer func() { _ = server.tracer.Shutdown(context.Background()) }()

	fmt.Fprintf(os.Stderr, "CIE MCP Server v%s starting (%s mode)...\n", mcpVersion, server.mode)
	if server.mode == "remote" {
		fmt.Fprintf(os.Stderr, "  Edge Cache: %s\n", cfg.CIE.EdgeCache)
	}
	fmt.Fprintf(os.Stderr, "  Project: %s\n", server.projectID)
	if cfg.Telemetry.Enabled {
		fmt.Fprintf(os.Stderr, "  Telemetry: enabled, trace file %s\n", cfg.Telemetry.TraceFile)
	}

	serveMCPLoop(server)
}

// setupTracer builds the Tracer for this process's lifetime. When
// telemetry is disabled in config, it returns a tracer whose StartSpan
// calls are no-ops so tool handlers never need to branch on whether
// tracing is active.
func setupTracer(cfg *Config) *telemetry.Tracer {
	if !cfg.Telemetry.Enabled {
		return telemetry.NewTracer(nil, 0, 0, false)
	}

	traceFile := cfg.Telemetry.TraceFile
	if traceFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			traceFile = fmt.Sprintf("%s/.cie/traces/%s.ndjson", home, cfg.ProjectID)
		}
	}
	if traceFile == "" {
		fmt.Fprintf(os.Stderr, "Warning: telemetry enabled but no trace file resolved, disabling\n")
		return telemetry.NewTracer(nil, 0, 0, false)
	}
	if err := os.MkdirAll(filepath.Dir(traceFile), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot create trace directory: %v\n", err)
		return telemetry.NewTracer(nil, 0, 0, false)
	}

	exporter, err := telemetry.NewFileExporter(traceFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open trace file %s: %v, disabling telemetry\n", traceFile, err)
		return telemetry.NewTracer(nil, 0, 0, false)
	}

	flushInterval := time.Duration(cfg.Telemetry.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	return telemetry.NewTracer(exporter, 50, flushInterval, true)
}

// loadMCPConfig loads the config file or falls back to environment variables.
func loadMCPConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		ue := errors.NewConfigError(
			"Cannot load CIE configuration file",
			"Configuration file is missing or invalid",
			"Using environment variables as fallback. Run 'cie init' to create a proper config.",
			err,
		)
		fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))

		cfg = DefaultConfig("")
		cfg.applyEnvOverrides()
		fmt.Fprintf(os.Stderr, "Using env fallback: project=%s\n", cfg.ProjectID)
	} else {
		fmt.Fprintf(os.Stderr, "Config loaded: project=%s\n", cfg.ProjectID)
	}
	return cfg
}

// setupMCPClient creates the appropriate Querier based on config (embedded vs remote).
func setupMCPClient(cfg *Config, configPath string) (tools.Querier, *tools.CIEClient, string, string) {
	if envURL := os.Getenv("CIE_BASE_URL"); envURL != "" && cfg.CIE.EdgeCache == envURL {
		fmt.Fprintf(os.Stderr, "Note: CIE_BASE_URL=%s is set, using remote mode. Unset it for embedded mode.\n", envURL)
	}

	if cfg.CIE.EdgeCache == "" {
		client, mode, projectID := setupEmbeddedClient(cfg, configPath,
			"Cannot open local database",
			"Failed to open CozoDB for embedded MCP mode",
			"Check that your local CIE data directory is accessible. Run 'cie index' first if needed.",
			"embedded",
		)
		return client, nil, mode, projectID
	}
	return setupRemoteClient(cfg)
}

// setupEmbeddedClient opens a local CozoDB backend and returns an EmbeddedQuerier.
func setupEmbeddedClient(cfg *Config, configPath, title, detail, suggestion, mode string) (tools.Querier, string, string) {
	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, false)
	}

	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		DataDir:   dataDir,
		Engine:    "rocksdb",
		ProjectID: cfg.ProjectID,
	})
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(title, detail, suggestion, err), false)
	}
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		signal.Stop(sigCh)
		_ = backend.Close()
		os.Exit(0)
	}()
	return tools.NewEmbeddedQuerier(backend), mode, cfg.ProjectID
}

// setupRemoteClient configures a remote HTTP client with auto-fallback to embedded mode.
func setupRemoteClient(cfg *Config) (tools.Querier, *tools.CIEClient, string, string) {
	httpClient := tools.NewCIEClient(cfg.CIE.EdgeCache, cfg.ProjectID)
	httpClient.SetEmbeddingConfig(cfg.Embedding.BaseURL, cfg.Embedding.Model)
	setupLLMRouting(httpClient, cfg)

	if isReachable(cfg.CIE.EdgeCache) {
		return httpClient, httpClient, "remote", cfg.ProjectID
	}

	fmt.Fprintf(os.Stderr, "Warning: Edge Cache at %s is not reachable.\n", cfg.CIE.EdgeCache)
	fmt.Fprintf(os.Stderr, "  Tip: Remove 'edge_cache' from .cie/project.yaml to use embedded mode.\n")
	return httpClient, httpClient, "remote (unreachable)", cfg.ProjectID
}

// setupLLMRouting configures cie_analyze's narrative generation. When
// cfg.LLM is enabled, it builds the configured llm.Provider, attaches it
// directly as client.LLMClient (the no-router fallback path), and also
// registers it with a router.Router so requests actually flow through
// scoring, circuit-breaking, and feedback-adjusted fallback rather than
// a single hardcoded provider call.
func setupLLMRouting(client *tools.CIEClient, cfg *Config) {
	if !cfg.LLM.Enabled {
		return
	}

	providerType := cfg.LLM.Provider
	if providerType == "" {
		providerType = "ollama"
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:         providerType,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.Model,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot create LLM provider (%s): %v, narrative generation disabled\n", providerType, err)
		return
	}

	client.SetLLMProvider(provider, cfg.LLM.MaxTokens)

	rtr := router.NewRouter(nil)
	rtr.RegisterProvider(provider, []router.ModelConfig{{
		ID:             cfg.LLM.Model,
		Vendor:         provider.Name(),
		Local:          providerType == "ollama",
		QualityScore:   0.7,
		SupportedTasks: []string{narrativeTask},
	}})
	client.ModelRouter = rtr
}

// narrativeTask identifies cie_analyze's narrative-generation chat
// completions to the router, distinguishing them from any other routed
// task sharing the same registered models in the future.
const narrativeTask = "analyze_narrative"

// projectDataDir resolves ~/.cie/data/<project_id>, the convention the rest
// of the cie commands (query, status, reset, index) already use.
func projectDataDir(cfg *Config, _ string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot determine home directory",
			"Operating system did not provide user home directory path",
			"Check your system configuration or set HOME environment variable",
			err,
		)
	}
	return fmt.Sprintf("%s/.cie/data/%s", home, cfg.ProjectID), nil
}

// serveMCPLoop reads JSON-RPC requests from stdin and writes responses to stdout.
func serveMCPLoop(server *mcpServer) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var req jsonRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			ue := errors.NewInputError(
				"Invalid JSON in MCP request",
				"The request does not conform to JSON-RPC 2.0 format",
				"Check your MCP client configuration or update Claude Code/Cursor",
			)
			fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))
			continue
		}

		fmt.Fprintf(os.Stderr, "-> %s\n", req.Method)

		ctx := context.Background()
		resp := server.handleRequest(ctx, req)

		if resp.ID == nil && resp.Result == nil && resp.Error == nil {
			continue
		}

		respBytes, err := json.Marshal(resp)
		if err != nil {
			ue := errors.NewInternalError(
				"Cannot encode MCP response",
				"Failed to marshal response to JSON",
				"This is a bug. Please report it with the request details.",
				err,
			)
			fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))
			continue
		}

		_, _ = fmt.Fprintf(os.Stdout, "%s\n", respBytes)
		_ = os.Stdout.Sync()

		fmt.Fprintf(os.Stderr, "<- response sent for %s\n", req.Method)
	}

	if err := scanner.Err(); err != nil {
		ue := errors.NewInternalError(
			"MCP server input error",
			"Failed to read from stdin",
			"Check if stdin is closed or if there's a pipe issue.",
			err,
		)
		errors.FatalError(ue, false)
	}
}

func (s *mcpServer) getTools() []mcpTool {
	return []mcpTool{
		{
			Name:        "cie_index_status",
			Description: "Check indexing status. Use this FIRST when a search returns nothing.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path_pattern": map[string]any{"type": "string"}},
				"required":   []string{},
			},
		},
		{
			Name:        "cie_search_text",
			Description: "Regex-capable search over function code, signatures, or names.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern":      map[string]any{"type": "string"},
					"literal":      map[string]any{"type": "boolean", "default": false},
					"search_in":    map[string]any{"type": "string", "enum": []string{"code", "signature", "name", "all"}, "default": "all"},
					"file_pattern": map[string]any{"type": "string"},
					"limit":        map[string]any{"type": "integer", "default": 20},
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "cie_find_function",
			Description: "Find functions by name. Handles Go receiver syntax.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":         map[string]any{"type": "string"},
					"exact_match":  map[string]any{"type": "boolean", "default": false},
					"include_code": map[string]any{"type": "boolean", "default": false},
				},
				"required": []string{"name"},
			},
		},
		{
			Name:        "cie_find_callers",
			Description: "Find all functions that call a specific function.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"function_name":    map[string]any{"type": "string"},
					"include_indirect": map[string]any{"type": "boolean", "default": false},
				},
				"required": []string{"function_name"},
			},
		},
		{
			Name:        "cie_find_callees",
			Description: "Find all functions called by a specific function.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"function_name": map[string]any{"type": "string"},
				},
				"required": []string{"function_name"},
			},
		},
		{
			Name:        "cie_list_files",
			Description: "List indexed files, filterable by language or path. The role argument is accepted but not applied.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path_pattern": map[string]any{"type": "string"},
					"language":     map[string]any{"type": "string"},
					"role":         map[string]any{"type": "string", "enum": []string{"any", "source", "test", "generated"}, "default": "source"},
					"limit":        map[string]any{"type": "integer", "default": 50},
				},
				"required": []string{},
			},
		},
		{
			Name:        "cie_raw_query",
			Description: "Execute a raw CozoScript query against the CIE database.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"script": map[string]any{"type": "string"}},
				"required":   []string{"script"},
			},
		},
		{
			Name:        "cie_get_function_code",
			Description: "Get the full source code of a function by name.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"function_name": map[string]any{"type": "string"},
					"full_code":     map[string]any{"type": "boolean", "default": false},
				},
				"required": []string{"function_name"},
			},
		},
		{
			Name:        "cie_list_functions_in_file",
			Description: "List all functions defined in a specific file.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
				"required":   []string{"file_path"},
			},
		},
		{
			Name:        "cie_get_call_graph",
			Description: "Get the complete call graph for a function: callers and callees.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"function_name": map[string]any{"type": "string"}},
				"required":   []string{"function_name"},
			},
		},
		{
			Name:        "cie_find_similar_functions",
			Description: "Find functions with similar names or patterns.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"pattern": map[string]any{"type": "string"}},
				"required":   []string{"pattern"},
			},
		},
		{
			Name:        "cie_get_file_summary",
			Description: "Get a summary of every entity (function, type, constant) in a file.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"file_path": map[string]any{"type": "string"}},
				"required":   []string{"file_path"},
			},
		},
		{
			Name:        "cie_semantic_search",
			Description: "Vector-similarity search by meaning. Use when you don't know exact names.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":          map[string]any{"type": "string"},
					"role":           map[string]any{"type": "string", "enum": []string{"any", "source", "test", "generated", "entry_point", "router", "handler"}, "default": "source"},
					"path_pattern":   map[string]any{"type": "string"},
					"min_similarity": map[string]any{"type": "number"},
					"limit":          map[string]any{"type": "integer", "default": 10},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "cie_hybrid_search",
			Description: "Fused semantic + lexical search with intent classification, reciprocal-rank fusion, and heuristic boosting (exact filename, popularity, domain). Prefer this over cie_semantic_search when query intent is ambiguous.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":        map[string]any{"type": "string"},
					"role":         map[string]any{"type": "string", "default": "source"},
					"path_pattern": map[string]any{"type": "string"},
					"expand":       map[string]any{"type": "boolean", "description": "Expand query with synonym terms before retrieval", "default": false},
					"limit":        map[string]any{"type": "integer", "default": 10},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "cie_analyze",
			Description: "Architectural Q&A with LLM narrative. Available only in remote mode.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question":     map[string]any{"type": "string"},
					"path_pattern": map[string]any{"type": "string"},
					"role":         map[string]any{"type": "string", "enum": []string{"source", "test", "any"}, "default": "source"},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        "cie_grep",
			Description: "Ultra-fast literal text search. Supports multi-pattern batch search via 'texts'.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":            map[string]any{"type": "string"},
					"texts":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"path":            map[string]any{"type": "string"},
					"exclude_pattern": map[string]any{"type": "string"},
					"case_sensitive":  map[string]any{"type": "boolean", "default": false},
					"context":         map[string]any{"type": "integer", "default": 0},
					"limit":           map[string]any{"type": "integer", "default": 30},
				},
				"required": []string{},
			},
		},
		{
			Name:        "cie_verify_absence",
			Description: "Verify that specific patterns do NOT exist. PASS/FAIL security audit tool.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patterns":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"path":            map[string]any{"type": "string"},
					"exclude_pattern": map[string]any{"type": "string"},
					"case_sensitive":  map[string]any{"type": "boolean", "default": false},
					"severity":        map[string]any{"type": "string", "enum": []string{"critical", "warning", "info"}, "default": "warning"},
				},
				"required": []string{"patterns"},
			},
		},
		{
			Name:        "cie_list_services",
			Description: "List gRPC services and RPC methods from .proto files.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path_pattern": map[string]any{"type": "string"},
					"service_name": map[string]any{"type": "string"},
				},
				"required": []string{},
			},
		},
		{
			Name:        "cie_directory_summary",
			Description: "Summarize a directory: files with their main exported functions.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":                   map[string]any{"type": "string"},
					"max_functions_per_file": map[string]any{"type": "integer", "default": 5},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "cie_list_endpoints",
			Description: "List HTTP/REST endpoints detected from common Go frameworks.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path_pattern": map[string]any{"type": "string"},
					"path_filter":  map[string]any{"type": "string"},
					"method":       map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "DELETE", "PATCH", "ANY", ""}},
					"limit":        map[string]any{"type": "integer", "default": 100},
				},
				"required": []string{},
			},
		},
		{
			Name:        "cie_find_implementations",
			Description: "Find concrete types implementing an interface.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"interface_name": map[string]any{"type": "string"},
					"path_pattern":   map[string]any{"type": "string"},
					"limit":          map[string]any{"type": "integer", "default": 20},
				},
				"required": []string{"interface_name"},
			},
		},
		{
			Name:        "cie_trace_path",
			Description: "Trace call paths from source function(s) to a target function.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target":       map[string]any{"type": "string"},
					"source":       map[string]any{"type": "string"},
					"max_paths":    map[string]any{"type": "integer", "default": 3},
					"max_depth":    map[string]any{"type": "integer", "default": 10},
					"path_pattern": map[string]any{"type": "string"},
				},
				"required": []string{"target"},
			},
		},
		{
			Name:        "cie_router_stats",
			Description: "Report narrative-generation model routing health: per-model success rate/latency feedback and cost attribution by task.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
		},
	}
}

// toolHandler is the signature for MCP tool handlers.
type toolHandler func(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error)

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"cie_search_text":            handleSearchText,
	"cie_find_function":          handleFindFunction,
	"cie_find_callers":           handleFindCallers,
	"cie_find_callees":           handleFindCallees,
	"cie_list_files":             handleListFiles,
	"cie_raw_query":              handleRawQuery,
	"cie_get_function_code":      handleGetFunctionCode,
	"cie_list_functions_in_file": handleListFunctionsInFile,
	"cie_get_call_graph":         handleGetCallGraph,
	"cie_find_similar_functions": handleFindSimilarFunctions,
	"cie_get_file_summary":       handleGetFileSummary,
	"cie_semantic_search":        handleSemanticSearch,
	"cie_hybrid_search":          handleHybridSearch,
	"cie_analyze":                handleAnalyze,
	"cie_index_status":           handleIndexStatus,
	"cie_grep":                   handleGrep,
	"cie_verify_absence":         handleVerifyAbsence,
	"cie_list_services":          handleListServices,
	"cie_directory_summary":      handleDirectorySummary,
	"cie_list_endpoints":         handleListEndpoints,
	"cie_find_implementations":   handleFindImplementations,
	"cie_trace_path":             handleTracePath,
	"cie_router_stats":           handleRouterStats,
}

func (s *mcpServer) handleToolCall(ctx context.Context, params mcpToolCallParams) (*mcpToolResult, error) {
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return &mcpToolResult{
			Content: []mcpContent{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", params.Name)}},
			IsError: true,
		}, nil
	}

	span := s.tracer.StartSpan("mcp.tool_call", telemetry.StartSpanOptions{
		Attributes: map[string]any{"tool": params.Name, "project_id": s.projectID, "mode": s.mode},
	})
	start := time.Now()
	defer func() {
		s.metrics.RecordRequest(params.Name, time.Since(start).Seconds())
		span.End()
	}()

	result, err := handler(ctx, s, params.Arguments)
	if err != nil {
		s.metrics.RecordError(params.Name)
		span.RecordException(err)
		return s.formatError(params.Name, err), nil
	}
	if result.IsError {
		s.metrics.RecordError(params.Name)
		span.SetStatus(telemetry.StatusError, result.Text)
	} else {
		span.SetStatus(telemetry.StatusOK, "")
	}
	span.SetAttribute("result_len", len(result.Text))

	return &mcpToolResult{
		Content: []mcpContent{{Type: "text", Text: result.Text}},
		IsError: result.IsError,
	}, nil
}

func handleSearchText(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	literal, _ := args["literal"].(bool)
	searchIn, _ := args["search_in"].(string)
	filePattern, _ := args["file_pattern"].(string)
	excludePattern, _ := args["exclude_pattern"].(string)
	limit, _ := getIntArg(args, "limit", 20)

	return tools.SearchText(ctx, s.client, tools.SearchTextArgs{
		Pattern:        pattern,
		FilePattern:    filePattern,
		ExcludePattern: excludePattern,
		SearchIn:       searchIn,
		Literal:        literal,
		Limit:          limit,
	})
}

func handleFindFunction(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	name, _ := args["name"].(string)
	exactMatch, _ := args["exact_match"].(bool)
	includeCode, _ := args["include_code"].(bool)
	return tools.FindFunction(ctx, s.client, tools.FindFunctionArgs{
		Name:        name,
		ExactMatch:  exactMatch,
		IncludeCode: includeCode,
	})
}

func handleFindCallers(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	funcName, _ := args["function_name"].(string)
	includeIndirect, _ := args["include_indirect"].(bool)
	return tools.FindCallers(ctx, s.client, tools.FindCallersArgs{
		FunctionName:    funcName,
		IncludeIndirect: includeIndirect,
	})
}

func handleFindCallees(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	funcName, _ := args["function_name"].(string)
	return tools.FindCallees(ctx, s.client, tools.FindCalleesArgs{
		FunctionName: funcName,
	})
}

func handleListFiles(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	pathPattern, _ := args["path_pattern"].(string)
	language, _ := args["language"].(string)
	limit, _ := getIntArg(args, "limit", 50)
	return tools.ListFiles(ctx, s.client, tools.ListFilesArgs{
		PathPattern: pathPattern,
		Language:    language,
		Limit:       limit,
	})
}

func handleRawQuery(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	script, _ := args["script"].(string)
	return tools.RawQuery(ctx, s.client, tools.RawQueryArgs{Script: script})
}

func handleGetFunctionCode(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	funcName, _ := args["function_name"].(string)
	fullCode, _ := args["full_code"].(bool)
	return tools.GetFunctionCode(ctx, s.client, tools.GetFunctionCodeArgs{
		FunctionName: funcName,
		FullCode:     fullCode,
	})
}

func handleListFunctionsInFile(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	filePath, _ := args["file_path"].(string)
	return tools.ListFunctionsInFile(ctx, s.client, tools.ListFunctionsInFileArgs{FilePath: filePath})
}

func handleGetCallGraph(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	funcName, _ := args["function_name"].(string)
	return tools.GetCallGraph(ctx, s.client, tools.GetCallGraphArgs{FunctionName: funcName})
}

func handleFindSimilarFunctions(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	return tools.FindSimilarFunctions(ctx, s.client, tools.FindSimilarFunctionsArgs{Pattern: pattern})
}

func handleGetFileSummary(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	filePath, _ := args["file_path"].(string)
	return tools.GetFileSummary(ctx, s.client, tools.GetFileSummaryArgs{FilePath: filePath})
}

func handleSemanticSearch(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	query, _ := args["query"].(string)
	limit, _ := getIntArg(args, "limit", 10)
	role, _ := args["role"].(string)
	pathPattern, _ := args["path_pattern"].(string)
	minSimilarity, _ := getFloatArg(args, "min_similarity", 0)

	return tools.SemanticSearch(ctx, s.client, tools.SemanticSearchArgs{
		Query:          query,
		Limit:          limit,
		Role:           role,
		PathPattern:    pathPattern,
		MinSimilarity:  minSimilarity,
		EmbeddingURL:   s.embeddingURL,
		EmbeddingModel: s.embeddingModel,
	})
}

func handleHybridSearch(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	query, _ := args["query"].(string)
	limit, _ := getIntArg(args, "limit", 10)
	role, _ := args["role"].(string)
	pathPattern, _ := args["path_pattern"].(string)
	expand, _ := args["expand"].(bool)

	return tools.HybridSearch(ctx, s.client, tools.HybridSearchArgs{
		Query:          query,
		Limit:          limit,
		Role:           role,
		PathPattern:    pathPattern,
		EmbeddingURL:   s.embeddingURL,
		EmbeddingModel: s.embeddingModel,
		Expand:         expand,
	})
}

func handleAnalyze(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	if s.httpClient == nil {
		return tools.NewError("cie_analyze requires remote mode (set 'edge_cache' in .cie/project.yaml). In embedded mode, use cie_hybrid_search and cie_trace_path instead."), nil
	}
	question, _ := args["question"].(string)
	pathPattern, _ := args["path_pattern"].(string)
	role, _ := args["role"].(string)
	return tools.Analyze(ctx, s.httpClient, tools.AnalyzeArgs{
		Question:    question,
		PathPattern: pathPattern,
		Role:        role,
	})
}

func handleIndexStatus(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	if s.httpClient == nil {
		return tools.NewError("cie_index_status requires remote mode. In embedded mode, run 'cie status' from the shell instead."), nil
	}
	pathPattern, _ := args["path_pattern"].(string)
	return tools.IndexStatus(ctx, s.httpClient, pathPattern)
}

func handleRouterStats(_ context.Context, s *mcpServer, _ map[string]any) (*tools.ToolResult, error) {
	if s.httpClient == nil || s.httpClient.ModelRouter == nil {
		return tools.NewError("cie_router_stats requires remote mode with an LLM provider configured (set 'llm.enabled: true' in .cie/project.yaml)."), nil
	}
	rtr, ok := s.httpClient.ModelRouter.(*router.Router)
	if !ok {
		return tools.NewError("model router does not expose stats"), nil
	}

	var b strings.Builder
	b.WriteString("## Model Routing Stats\n\n### Feedback (rolling per-model outcomes)\n\n")
	stats := rtr.Stats()
	if len(stats) == 0 {
		b.WriteString("No model invocations recorded yet.\n")
	} else {
		for model, st := range stats {
			fmt.Fprintf(&b, "- **%s**: %d samples, %.1f%% success, p50=%s, disabled=%v\n",
				model, st.Samples, st.SuccessRate*100, st.P50Latency, rtr.Feedback().IsDisabled(model))
		}
	}

	b.WriteString("\n### Cost by task\n\n")
	costs := rtr.CostReport()
	if len(costs) == 0 {
		b.WriteString("No cost data recorded yet.\n")
	} else {
		for _, c := range costs {
			fmt.Fprintf(&b, "- **%s**: %d calls, %d in / %d out tokens, $%.4f\n",
				c.Key, c.Count, c.InputTokens, c.OutputTokens, c.CostUSD)
		}
	}

	return tools.NewResult(b.String()), nil
}

func handleGrep(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	text, _ := args["text"].(string)
	path, _ := args["path"].(string)
	excludePattern, _ := args["exclude_pattern"].(string)
	caseSensitive, _ := args["case_sensitive"].(bool)
	contextLines, _ := getIntArg(args, "context", 0)
	limit, _ := getIntArg(args, "limit", 30)
	texts := extractStringArray(args, "texts")

	return tools.Grep(ctx, s.client, tools.GrepArgs{
		Text:           text,
		Texts:          texts,
		Path:           path,
		ExcludePattern: excludePattern,
		CaseSensitive:  caseSensitive,
		ContextLines:   contextLines,
		Limit:          limit,
	})
}

func handleVerifyAbsence(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	path, _ := args["path"].(string)
	excludePattern, _ := args["exclude_pattern"].(string)
	caseSensitive, _ := args["case_sensitive"].(bool)
	severity, _ := args["severity"].(string)
	patterns := extractStringArray(args, "patterns")

	return tools.VerifyAbsence(ctx, s.client, tools.VerifyAbsenceArgs{
		Patterns:       patterns,
		Path:           path,
		ExcludePattern: excludePattern,
		CaseSensitive:  caseSensitive,
		Severity:       severity,
	})
}

func handleListServices(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	pathPattern, _ := args["path_pattern"].(string)
	serviceName, _ := args["service_name"].(string)
	return tools.ListServices(ctx, s.client, pathPattern, serviceName)
}

func handleDirectorySummary(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	path, _ := args["path"].(string)
	maxFuncs, _ := getIntArg(args, "max_functions_per_file", 5)
	return tools.DirectorySummary(ctx, s.client, path, maxFuncs)
}

func handleListEndpoints(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	pathPattern, _ := args["path_pattern"].(string)
	pathFilter, _ := args["path_filter"].(string)
	method, _ := args["method"].(string)
	limit, _ := getIntArg(args, "limit", 100)
	return tools.ListEndpoints(ctx, s.client, tools.ListEndpointsArgs{
		PathPattern: pathPattern,
		PathFilter:  pathFilter,
		Method:      method,
		Limit:       limit,
	})
}

func handleFindImplementations(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	interfaceName, _ := args["interface_name"].(string)
	pathPattern, _ := args["path_pattern"].(string)
	limit, _ := getIntArg(args, "limit", 20)
	return tools.FindImplementations(ctx, s.client, tools.FindImplementationsArgs{
		InterfaceName: interfaceName,
		PathPattern:   pathPattern,
		Limit:         limit,
	})
}

func handleTracePath(ctx context.Context, s *mcpServer, args map[string]any) (*tools.ToolResult, error) {
	target, _ := args["target"].(string)
	source, _ := args["source"].(string)
	pathPattern, _ := args["path_pattern"].(string)
	maxPaths, _ := getIntArg(args, "max_paths", 3)
	maxDepth, _ := getIntArg(args, "max_depth", 10)
	return tools.TracePath(ctx, s.client, tools.TracePathArgs{
		Target:      target,
		Source:      source,
		PathPattern: pathPattern,
		MaxPaths:    maxPaths,
		MaxDepth:    maxDepth,
	})
}

// extractStringArray extracts a string array from the arguments map.
func extractStringArray(args map[string]any, key string) []string {
	var result []string
	if raw, ok := args[key].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
	}
	return result
}

// formatError creates an actionable error message based on the error type and tool.
func (s *mcpServer) formatError(toolName string, err error) *mcpToolResult {
	errStr := err.Error()
	var msg string

	switch {
	case tools.ContainsStr(errStr, "connection refused"):
		if s.mode == "embedded" {
			msg = "**Database Error:** Cannot read local database\n\n" +
				"Run 'cie index' to index the project first, and check the local data directory is accessible.\n"
		} else {
			msg = "**Connection Error:** Cannot connect to Edge Cache\n\n" +
				"Check the 'edge_cache' URL in .cie/project.yaml and that the server is running.\n"
		}

	case tools.ContainsStr(errStr, "timeout") || tools.ContainsStr(errStr, "deadline exceeded"):
		msg = "**Timeout Error:** Query took too long to execute\n\n" +
			"Try a more specific query with filters, or reduce the limit parameter.\n"

	case tools.ContainsStr(errStr, "query:") || tools.ContainsStr(errStr, "CozoScript") || tools.ContainsStr(errStr, "parse error"):
		msg = fmt.Sprintf("**Query Error:** Database query syntax error\n\n```\n%s\n```\n", errStr)

	case tools.ContainsStr(errStr, "no rows") || tools.ContainsStr(errStr, "not found"):
		msg = fmt.Sprintf("**No Results:** %s found no matching data. Use cie_index_status or cie_list_files to verify the path is indexed.\n", toolName)

	default:
		msg = fmt.Sprintf("**Error in %s:**\n```\n%s\n```\n", toolName, errStr)
	}

	return &mcpToolResult{
		Content: []mcpContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

func (s *mcpServer) handleRequest(ctx context.Context, req jsonRPCRequest) jsonRPCResponse {
	switch req.Method {
	case "initialize":
		return jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: mcpInitializeResult{
				ProtocolVersion: "2024-11-05",
				Capabilities:    mcpCapabilities{Tools: map[string]any{"listChanged": true}},
				ServerInfo:      mcpServerInfo{Name: mcpServerName, Version: mcpVersion},
				Instructions:    cieInstructions,
			},
		}

	case "notifications/initialized":
		return jsonRPCResponse{}

	case "tools/list":
		return jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mcpToolsListResult{Tools: s.getTools()},
		}

	case "tools/call":
		var params mcpToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &rpcError{Code: -32602, Message: "Invalid params", Data: err.Error()},
			}
		}

		result, err := s.handleToolCall(ctx, params)
		if err != nil {
			return jsonRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &rpcError{Code: -32603, Message: "Internal error", Data: err.Error()},
			}
		}

		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}

	default:
		return jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32601, Message: "Method not found", Data: req.Method},
		}
	}
}

// getIntArg retrieves an integer argument from the params map, with a default fallback.
func getIntArg(args map[string]interface{}, key string, fallback int) (int, bool) {
	if v, ok := args[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f), true
		}
		if i, ok := v.(int); ok {
			return i, true
		}
	}
	return fallback, false
}

func getFloatArg(args map[string]interface{}, key string, fallback float64) (float64, bool) {
	if v, ok := args[key]; ok {
		if f, ok := v.(float64); ok {
			return f, true
		}
		if i, ok := v.(int); ok {
			return float64(i), true
		}
	}
	return fallback, false
}

// isReachable checks if a URL responds within a short timeout.
func isReachable(url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url + "/health")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
