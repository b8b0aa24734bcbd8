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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 10*time.Minute, cfg.RequestTimeout.Std())
	assert.Equal(t, "gemini-2.5-pro", cfg.Model())
	assert.Equal(t, "GEMINI_API_KEY", cfg.APIKeyEnv())
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
provider: openai
max_iterations: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, "gpt-4o", cfg.Model())
	assert.Equal(t, "OPENAI_API_KEY", cfg.APIKeyEnv())
	assert.Equal(t, 10*time.Minute, cfg.RequestTimeout.Std())
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
version: 1
provider: gemini
max_iterations: 10
request_timeout: 5m
temperature: 0.2
thinking_budget: 16384
providers:
  gemini:
    model: gemini-2.5-flash
    api_key_env: MY_GEMINI_KEY
    requests_per_second: 0.5
retry:
  max_retries: 2
  initial_delay: 200ms
  max_delay: 5s
log:
  level: debug
  format: json
history:
  path: /tmp/refinery-test.db
tracing:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout.Std())
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 16384, cfg.ThinkingBudget)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model())
	assert.Equal(t, "MY_GEMINI_KEY", cfg.APIKeyEnv())
	assert.Equal(t, 0.5, cfg.Providers["gemini"].RequestsPerSecond)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialDelay.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/refinery-test.db", cfg.History.Path)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
provider: gemini
max_iterations: 3
`)

	t.Setenv("REFINERY_PROVIDER", "openai")
	t.Setenv("REFINERY_MODEL", "gpt-4o-mini")
	t.Setenv("REFINERY_MAX_ITERATIONS", "7")
	t.Setenv("REFINERY_REQUEST_TIMEOUT", "30s")
	t.Setenv("REFINERY_TRACE", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model())
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout.Std())
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "provider: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config YAML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "claude" },
			wantKey: "provider",
		},
		{
			name:    "zero max iterations",
			mutate:  func(c *Config) { c.MaxIterations = 0 },
			wantKey: "max_iterations",
		},
		{
			name:    "negative max iterations",
			mutate:  func(c *Config) { c.MaxIterations = -1 },
			wantKey: "max_iterations",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Temperature = 3.5 },
			wantKey: "temperature",
		},
		{
			name:    "negative thinking budget",
			mutate:  func(c *Config) { c.ThinkingBudget = -1 },
			wantKey: "thinking_budget",
		},
		{
			name:    "missing model for active provider",
			mutate:  func(c *Config) { c.Providers["gemini"] = ProviderConfig{} },
			wantKey: "providers.gemini.model",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Retry.MaxRetries = -1 },
			wantKey: "retry.max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *refineryerrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestValidate_DefaultsPass(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Provider = "openai"
	cfg.MaxIterations = 4
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", loaded.Provider)
	assert.Equal(t, 4, loaded.MaxIterations)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestIsSupportedProvider(t *testing.T) {
	assert.True(t, IsSupportedProvider("gemini"))
	assert.True(t, IsSupportedProvider("openai"))
	assert.False(t, IsSupportedProvider("anthropic"))
	assert.False(t, IsSupportedProvider(""))
}
