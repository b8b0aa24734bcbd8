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

// Package run implements the refinery run command.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prooflab/refinery/internal/cli/prompt"
	"github.com/prooflab/refinery/internal/commands/shared"
	"github.com/prooflab/refinery/internal/config"
	"github.com/prooflab/refinery/internal/log"
	"github.com/prooflab/refinery/internal/runstore"
	"github.com/prooflab/refinery/internal/secrets"
	"github.com/prooflab/refinery/internal/tracing"
	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/llm"
	"github.com/prooflab/refinery/pkg/llm/providers"
	"github.com/prooflab/refinery/pkg/pipeline"
)

type runOptions struct {
	provider      string
	model         string
	maxIterations int
	problemFile   string
	autoApprove   bool
	autoReject    bool
	noSave        bool
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "Run the proof-refinement pipeline on a problem",
		Long: `Run the full pipeline on a problem statement: draft a solution,
self-improve it, verify it, and loop through human-approved corrections
until the verifier is satisfied or the iteration budget runs out.

The problem can be given as an argument, read from a file with --file,
or entered interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "", "Override the configured provider (gemini, openai)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Override the configured model")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Override the verification budget")
	cmd.Flags().StringVarP(&opts.problemFile, "file", "f", "", "Read the problem statement from a file")
	cmd.Flags().BoolVar(&opts.autoApprove, "auto-approve", false, "Approve every critique without prompting")
	cmd.Flags().BoolVar(&opts.autoReject, "auto-reject", false, "Reject every critique without prompting")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not record the run in history")

	return cmd
}

func runPipeline(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.NewConfigError("invalid configuration", err)
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return shared.NewConfigError("invalid configuration", err)
	}

	problem, err := resolveProblem(args, opts)
	if err != nil {
		return err
	}

	reviewer, err := buildReviewer(opts)
	if err != nil {
		return err
	}

	logger := log.New(loggerConfig(cfg))

	apiKey, err := secrets.NewStore().APIKey(cfg.Provider, cfg.APIKeyEnv())
	if err != nil {
		return shared.NewProviderError(
			fmt.Sprintf("no API key for %s (run 'refinery setup' or set %s)", cfg.Provider, cfg.APIKeyEnv()),
			err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retryCfg := llm.RetryConfig{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay.Std(),
		MaxDelay:     cfg.Retry.MaxDelay.Std(),
		Multiplier:   2.0,
		Jitter:       0.1,
	}
	provider, err := providers.New(ctx, cfg.Provider, providers.Options{
		APIKey:            apiKey,
		RetryConfig:       &retryCfg,
		RequestsPerSecond: cfg.Providers[cfg.Provider].RequestsPerSecond,
	})
	if err != nil {
		return shared.NewProviderError("failed to initialize provider", err)
	}
	if _, known := llm.FindModel(provider.Capabilities(), cfg.Model()); !known {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(
			fmt.Sprintf("model %s is not in the %s model catalog; passing it through unchanged", cfg.Model(), cfg.Provider)))
	}

	version, _, _ := shared.GetVersion()
	traceProvider, err := tracing.New(cfg.Tracing.Enabled, os.Stderr, version)
	if err != nil {
		return shared.NewRunError("failed to initialize tracing", err)
	}
	defer traceProvider.Shutdown(context.Background())

	client := pipeline.NewModelClient(provider, modelConfig(cfg), logger)
	dispatcher, err := pipeline.NewDispatcher(pipeline.Options{
		Generator:     client,
		SelfImprover:  client,
		Verifier:      client,
		Corrector:     client,
		Reviewer:      reviewer,
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
		Tracer:        traceProvider.Tracer("refinery/pipeline"),
	})
	if err != nil {
		return shared.NewConfigError("invalid pipeline options", err)
	}

	report, runErr := dispatcher.Run(ctx, problem)

	if report != nil && !opts.noSave {
		if saveErr := saveReport(cfg, report); saveErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn("failed to record run: "+saveErr.Error()))
		}
	}

	if report != nil {
		if err := renderReport(cmd, report); err != nil {
			return err
		}
	}

	if runErr != nil {
		if refineryerrors.IsAborted(runErr) {
			return runErr
		}
		return shared.NewRunError("pipeline run failed", runErr)
	}
	return nil
}

// applyOverrides layers command-line flags over the loaded config.
func applyOverrides(cfg *config.Config, opts *runOptions) {
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		p := cfg.Providers[cfg.Provider]
		p.Model = opts.model
		cfg.Providers[cfg.Provider] = p
	}
	if opts.maxIterations > 0 {
		cfg.MaxIterations = opts.maxIterations
	}
}

// resolveProblem finds the problem statement from the argument, the
// --file flag, or an interactive prompt.
func resolveProblem(args []string, opts *runOptions) (string, error) {
	if opts.problemFile != "" {
		data, err := os.ReadFile(opts.problemFile)
		if err != nil {
			return "", shared.NewMissingInputError("failed to read problem file", err)
		}
		return string(data), nil
	}

	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}

	if !prompt.IsInteractive() {
		return "", shared.NewMissingInputError(
			"no problem statement given and stdin is not a terminal", nil)
	}

	problem, err := prompt.AskProblem()
	if err != nil {
		return "", err
	}
	return problem, nil
}

// buildReviewer chooses the human gate implementation. Interactive
// review needs a terminal; the auto flags are for scripted runs.
func buildReviewer(opts *runOptions) (pipeline.Reviewer, error) {
	switch {
	case opts.autoApprove && opts.autoReject:
		return nil, shared.NewMissingInputError("--auto-approve and --auto-reject are mutually exclusive", nil)
	case opts.autoApprove:
		return &pipeline.CannedReviewer{Decisions: []pipeline.Decision{pipeline.DecisionApproved}}, nil
	case opts.autoReject:
		return &pipeline.CannedReviewer{Decisions: []pipeline.Decision{pipeline.DecisionRejected}}, nil
	case !prompt.IsInteractive():
		return nil, shared.NewMissingInputError(
			"stdin is not a terminal; use --auto-approve or --auto-reject for non-interactive runs", nil)
	default:
		return prompt.NewSurveyReviewer(), nil
	}
}

// loggerConfig derives the log configuration from config and the global
// verbosity flags.
func loggerConfig(cfg *config.Config) *log.Config {
	logCfg := log.FromEnv()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	if shared.GetVerbose() {
		logCfg.Level = "debug"
	}
	if shared.GetQuiet() {
		logCfg.Level = "error"
	}
	return logCfg
}

// modelConfig builds the per-stage model settings from config.
func modelConfig(cfg *config.Config) pipeline.ModelConfig {
	temperature := cfg.Temperature
	mc := pipeline.ModelConfig{
		Model:       cfg.Model(),
		Temperature: &temperature,
		Timeout:     cfg.RequestTimeout.Std(),
	}
	if cfg.ThinkingBudget > 0 {
		budget := cfg.ThinkingBudget
		mc.ThinkingBudget = &budget
	}
	return mc
}

// saveReport archives the run in the history store.
func saveReport(cfg *config.Config, report *pipeline.Report) error {
	path := cfg.History.Path
	if path == "" {
		var err error
		path, err = config.HistoryPath()
		if err != nil {
			return err
		}
	}

	store, err := runstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Save(context.Background(), report)
}
