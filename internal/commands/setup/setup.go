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

// Package setup implements the interactive refinery setup command.
package setup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/prooflab/refinery/internal/commands/shared"
	"github.com/prooflab/refinery/internal/config"
	"github.com/prooflab/refinery/internal/secrets"
	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

// modelOptions lists selectable models per provider.
var modelOptions = map[string][]string{
	"gemini": {"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"},
	"openai": {"gpt-4o", "gpt-4o-mini"},
}

// NewSetupCommand creates the setup command
func NewSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure provider, model, and API key interactively",
		Long: `Walk through provider selection, model choice, verification budget,
and API key storage. The API key is stored in the OS keychain; the rest
is written to the config file.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		// A broken existing file should not block reconfiguration.
		cfg = config.Default()
	}

	provider := cfg.Provider
	model := cfg.Model()
	maxIterations := strconv.Itoa(cfg.MaxIterations)
	apiKey := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Description("LLM provider for all pipeline stages").
				Options(
					huh.NewOption("Gemini", "gemini"),
					huh.NewOption("OpenAI", "openai"),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model").
				Description("Model used for every pipeline stage").
				OptionsFunc(func() []huh.Option[string] {
					opts := make([]huh.Option[string], 0, len(modelOptions[provider]))
					for _, m := range modelOptions[provider] {
						opts = append(opts, huh.NewOption(m, m))
					}
					return opts
				}, &provider).
				Value(&model),
			huh.NewInput().
				Title("Verification budget").
				Description("Maximum number of verifier passes per run").
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 {
						return errors.New("enter a whole number of at least 1")
					}
					return nil
				}).
				Value(&maxIterations),
			huh.NewInput().
				Title("API key").
				Description("Stored in the OS keychain; leave empty to keep the current key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return refineryerrors.ErrAborted
		}
		return shared.NewRunError("setup form failed", err)
	}

	cfg.Provider = provider
	p := cfg.Providers[provider]
	p.Model = model
	cfg.Providers[provider] = p
	cfg.MaxIterations, _ = strconv.Atoi(strings.TrimSpace(maxIterations))

	if err := cfg.Validate(); err != nil {
		return shared.NewConfigError("invalid configuration", err)
	}

	if apiKey != "" {
		if err := secrets.NewStore().SetAPIKey(provider, apiKey); err != nil {
			return shared.NewRunError("failed to store API key", err)
		}
	}

	if err := config.Save(shared.GetConfigPath(), cfg); err != nil {
		return shared.NewConfigError("failed to save configuration", err)
	}

	path := shared.GetConfigPath()
	if path == "" {
		path, _ = config.ConfigPath()
	}
	cmd.Println(shared.RenderOK(fmt.Sprintf("configuration saved to %s", path)))
	if apiKey != "" {
		cmd.Println(shared.RenderOK("API key stored in the OS keychain"))
	}

	return nil
}
