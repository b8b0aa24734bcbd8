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
	"fmt"
	"strings"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

// Validate checks the configuration for values the pipeline cannot run
// with. It returns the first problem found as a ConfigError.
func (c *Config) Validate() error {
	if !IsSupportedProvider(c.Provider) {
		return &refineryerrors.ConfigError{
			Key: "provider",
			Reason: fmt.Sprintf("unknown provider %q (supported: %s)",
				c.Provider, strings.Join(SupportedProviders(), ", ")),
		}
	}

	if c.MaxIterations < 1 {
		return &refineryerrors.ConfigError{
			Key:    "max_iterations",
			Reason: fmt.Sprintf("must be at least 1, got %d", c.MaxIterations),
		}
	}

	if c.RequestTimeout < 0 {
		return &refineryerrors.ConfigError{
			Key:    "request_timeout",
			Reason: "must not be negative",
		}
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return &refineryerrors.ConfigError{
			Key:    "temperature",
			Reason: fmt.Sprintf("must be between 0 and 2, got %g", c.Temperature),
		}
	}

	if c.ThinkingBudget < 0 {
		return &refineryerrors.ConfigError{
			Key:    "thinking_budget",
			Reason: "must not be negative",
		}
	}

	active, ok := c.Providers[c.Provider]
	if !ok || active.Model == "" {
		return &refineryerrors.ConfigError{
			Key:    "providers." + c.Provider + ".model",
			Reason: "no model configured for the active provider",
		}
	}

	if c.Retry.MaxRetries < 0 {
		return &refineryerrors.ConfigError{
			Key:    "retry.max_retries",
			Reason: "must not be negative",
		}
	}

	return nil
}

// APIKeyEnv returns the environment variable to check for the active
// provider's credential.
func (c *Config) APIKeyEnv() string {
	if p, ok := c.Providers[c.Provider]; ok && p.APIKeyEnv != "" {
		return p.APIKeyEnv
	}
	return DefaultAPIKeyEnv(c.Provider)
}

// Model returns the configured model for the active provider.
func (c *Config) Model() string {
	return c.Providers[c.Provider].Model
}
