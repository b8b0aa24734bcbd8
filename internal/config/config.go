// Copyright 2025 The Refinery Authors
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

// Package config loads and validates the Refinery configuration from
// ~/.config/refinery/config.yaml with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Refinery configuration.
type Config struct {
	// Version is the config schema version.
	Version int `yaml:"version"`

	// Provider is the default LLM provider name (gemini, openai).
	Provider string `yaml:"provider"`

	// MaxIterations caps the number of verifier passes per run.
	MaxIterations int `yaml:"max_iterations"`

	// RequestTimeout bounds each model call.
	RequestTimeout Duration `yaml:"request_timeout"`

	// Temperature is the sampling temperature for all model calls.
	// Low values keep mathematical output consistent across passes.
	Temperature float64 `yaml:"temperature"`

	// ThinkingBudget is the extended reasoning token budget passed to
	// providers that support it. Zero disables it.
	ThinkingBudget int `yaml:"thinking_budget,omitempty"`

	// Providers holds per-provider settings keyed by provider name.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Retry configures the provider retry wrapper.
	Retry RetryConfig `yaml:"retry"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// History configures the run history store.
	History HistoryConfig `yaml:"history"`

	// Tracing enables the per-stage span exporter.
	Tracing TracingConfig `yaml:"tracing"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	// Model is the model identifier used for every stage.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable checked before the OS
	// keychain. Empty uses the provider's conventional variable.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// RequestsPerSecond rate-limits calls to this provider. Zero
	// disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// RetryConfig configures the provider retry wrapper.
type RetryConfig struct {
	// MaxRetries is the retry attempt bound (0 disables retries).
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry.
	InitialDelay Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff delay.
	MaxDelay Duration `yaml:"max_delay"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is the output format (json, text).
	Format string `yaml:"format"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	// Path is the SQLite database path. Empty uses the XDG default.
	Path string `yaml:"path,omitempty"`
}

// TracingConfig configures the span exporter.
type TracingConfig struct {
	// Enabled turns on the stdout span exporter.
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with sensible defaults: Gemini with the
// strategic model, three verification passes, a ten minute call budget.
func Default() *Config {
	return &Config{
		Version:        1,
		Provider:       "gemini",
		MaxIterations:  3,
		RequestTimeout: Duration(10 * time.Minute),
		Temperature:    0.1,
		ThinkingBudget: 32768,
		Providers: map[string]ProviderConfig{
			"gemini": {Model: "gemini-2.5-pro"},
			"openai": {Model: "gpt-4o"},
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: Duration(100 * time.Millisecond),
			MaxDelay:     Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills zero-valued fields after unmarshalling a partial
// config file.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.Providers == nil {
		c.Providers = def.Providers
	} else {
		for name, p := range def.Providers {
			existing, ok := c.Providers[name]
			if !ok {
				c.Providers[name] = p
				continue
			}
			if existing.Model == "" {
				existing.Model = p.Model
				c.Providers[name] = existing
			}
		}
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry = def.Retry
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Load reads the config file at path, applies defaults and environment
// overrides, and validates the result. An empty path uses the default
// location; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Missing file is fine, defaults apply.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
		cfg.applyDefaults()
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies environment-variable overrides on top of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REFINERY_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("REFINERY_MODEL"); v != "" {
		p := c.Providers[c.Provider]
		p.Model = v
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		c.Providers[c.Provider] = p
	}
	if v := os.Getenv("REFINERY_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("REFINERY_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = Duration(d)
		}
	}
	if v := os.Getenv("REFINERY_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("REFINERY_TRACE"); v == "true" || v == "1" {
		c.Tracing.Enabled = true
	}
}

// Save writes the config atomically with secure permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
