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
	"fmt"
	"os"
	"path/filepath"

	"github.com/kraklabs/cie/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".cie"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config represents the .cie/project.yaml configuration file.
type Config struct {
	Version   string          `yaml:"version"`
	ProjectID string          `yaml:"project_id"`
	CIE       CIEConfig       `yaml:"cie"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Roles     RolesConfig     `yaml:"roles,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Router    RouterConfig    `yaml:"router,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// CIEConfig contains CIE server configuration.
type CIEConfig struct {
	PrimaryHub string `yaml:"primary_hub"`
	EdgeCache  string `yaml:"edge_cache"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// IndexingConfig contains indexing settings.
type IndexingConfig struct {
	ParserMode  string   `yaml:"parser_mode"`
	BatchTarget int      `yaml:"batch_target"`
	MaxFileSize int64    `yaml:"max_file_size"`
	Exclude     []string `yaml:"exclude"`
}

// RolesConfig contains custom role pattern definitions, keyed by role name.
type RolesConfig struct {
	Custom map[string]RolePattern `yaml:"custom"`
}

// RolePattern defines how to identify a role in code.
type RolePattern struct {
	FilePattern string `yaml:"file_pattern,omitempty"`
	NamePattern string `yaml:"name_pattern,omitempty"`
	CodePattern string `yaml:"code_pattern,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// LLMConfig holds LLM provider settings for narrative generation in analyze.
type LLMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider,omitempty"` // "ollama", "openai", "anthropic"; defaults to "ollama"
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// RouterConfig holds model-routing policy defaults applied when the MCP
// server or analyze pipeline dispatches an LLM task through internal/router.
type RouterConfig struct {
	PreferLocal      bool     `yaml:"prefer_local"`
	QualityThreshold float64  `yaml:"quality_threshold,omitempty"`
	FallbackOrder    []string `yaml:"fallback_order,omitempty"`
}

// TelemetryConfig controls whether MCP tool calls are traced/exported.
// Disabled by default: the MCP server is invoked as a subprocess by
// editor/agent clients and most installs have nowhere to ship traces to.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	TraceFile     string `yaml:"trace_file,omitempty"`
	FlushInterval int    `yaml:"flush_interval_seconds,omitempty"`
}

// DefaultConfig returns a config with sensible defaults for local development.
func DefaultConfig(projectID string) *Config {
	return &Config{
		Version:   configVersion,
		ProjectID: projectID,
		CIE: CIEConfig{
			// Primary Hub and Edge Cache are for enterprise/distributed deployments only.
			// Leave empty for standalone mode (local CozoDB storage).
			PrimaryHub: getEnv("CIE_PRIMARY_HUB", ""),
			EdgeCache:  getEnv("CIE_BASE_URL", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			BaseURL:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
			Model:      getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Dimensions: 768,
		},
		Indexing: IndexingConfig{
			ParserMode:  "auto",
			BatchTarget: 500,
			MaxFileSize: 1048576,
			Exclude: []string{
				".git/**",
				"node_modules/**",
				"vendor/**",
				"dist/**",
				"build/**",
				"*.o",
				"*.so",
				"*.dylib",
				"*.exe",
			},
		},
		Router: RouterConfig{
			PreferLocal:      true,
			QualityThreshold: 0.5,
		},
		Telemetry: TelemetryConfig{
			Enabled:       getEnv("CIE_TELEMETRY", "") == "1",
			FlushInterval: 10,
		},
	}
}

// LoadConfig loads configuration from the specified path or finds it automatically.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv("CIE_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findConfigFile()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path comes from user config or discovery
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("Failed to read %s", configPath),
			"Check file permissions and ensure the file exists",
			err,
		)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration format",
			"YAML parsing failed - the config file contains syntax errors",
			fmt.Sprintf("Edit %s to fix syntax errors, or run 'cie init --force' to recreate", configPath),
			err,
		)
	}

	if cfg.Version != configVersion {
		return nil, errors.NewConfigError(
			"Unsupported configuration version",
			fmt.Sprintf("Config version '%s' is not supported (expected '%s')", cfg.Version, configVersion),
			"Run 'cie init --force' to regenerate the configuration file",
			nil,
		)
	}

	cfg.applyEnvOverrides()

	return &cfg, nil
}

// SaveConfig writes the configuration to the specified path as YAML.
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError(
			"Cannot encode configuration",
			"YAML marshaling failed unexpectedly",
			"This is a bug. Please report it with your configuration details",
			err,
		)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.NewPermissionError(
			"Cannot create configuration directory",
			fmt.Sprintf("Permission denied creating %s", dir),
			"Check directory permissions or run with appropriate privileges",
			err,
		)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.NewPermissionError(
			"Cannot write configuration file",
			fmt.Sprintf("Permission denied writing to %s", configPath),
			"Check file permissions and ensure sufficient disk space",
			err,
		)
	}

	return nil
}

// ConfigPath returns the path to the config file in the given directory.
func ConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// ConfigDir returns the path to the .cie directory in the given directory.
func ConfigDir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// findConfigFile searches for .cie/project.yaml in current and parent directories.
func findConfigFile() (string, error) {
	if configPath := os.Getenv("CIE_CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", errors.NewConfigError(
			"Configuration file not found",
			fmt.Sprintf("CIE_CONFIG_PATH is set to '%s' but the file does not exist", configPath),
			"Fix the CIE_CONFIG_PATH environment variable or run 'cie init' to create a config",
			nil,
		)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.NewInternalError(
			"Cannot access working directory",
			"Failed to determine current directory path",
			"Check system permissions and try again",
			err,
		)
	}

	for {
		configPath := ConfigPath(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.NewConfigError(
		"Configuration not found",
		"No .cie/project.yaml file found in current directory or any parent directory",
		"Run 'cie init' to create a new configuration",
		nil,
	)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CIE_BASE_URL"); url != "" {
		c.CIE.EdgeCache = url
	}
	if url := os.Getenv("CIE_PRIMARY_HUB"); url != "" {
		c.CIE.PrimaryHub = url
	}
	if id := os.Getenv("CIE_PROJECT_ID"); id != "" {
		c.ProjectID = id
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.BaseURL = host
	}
	if model := os.Getenv("OLLAMA_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
	if url := os.Getenv("CIE_LLM_URL"); url != "" {
		c.LLM.BaseURL = url
		c.LLM.Enabled = true
	}
	if model := os.Getenv("CIE_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("CIE_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if v := os.Getenv("CIE_ROUTER_PREFER_LOCAL"); v == "false" {
		c.Router.PreferLocal = false
	}
}

// getEnv retrieves an environment variable or returns a fallback value if not set.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
