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

// Package history implements the refinery history commands.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prooflab/refinery/internal/commands/shared"
	"github.com/prooflab/refinery/internal/config"
	"github.com/prooflab/refinery/internal/runstore"
)

// NewHistoryCommand creates the history command with its subcommands
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List and inspect past runs",
		Long:  `List archived pipeline runs and inspect their full reports.`,
		RunE:  runList,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full report of a past run",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.AddCommand(show)

	return cmd
}

// openStore opens the configured run history database.
func openStore() (*runstore.Store, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, shared.NewConfigError("invalid configuration", err)
	}

	path := cfg.History.Path
	if path == "" {
		path, err = config.HistoryPath()
		if err != nil {
			return nil, shared.NewRunError("failed to resolve history path", err)
		}
	}

	store, err := runstore.Open(path)
	if err != nil {
		return nil, shared.NewRunError("failed to open run history", err)
	}
	return store, nil
}

func runList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return shared.NewRunError("failed to list runs", err)
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summaries: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		cmd.Println("No runs recorded yet.")
		return nil
	}

	for _, summary := range summaries {
		problem := summary.Problem
		if len(problem) > 60 {
			problem = problem[:57] + "..."
		}
		cmd.Printf("%s  %s  %-16s  %d passes  %s\n",
			summary.RunID,
			summary.StartedAt.Local().Format(time.DateTime),
			summary.Outcome,
			summary.IterationCount,
			shared.RenderLabel(problem))
	}

	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return shared.NewRunError("failed to load run", err)
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(shared.Header.Render("Run " + report.RunID))
	cmd.Printf("%s %s\n", shared.RenderLabel("outcome:"), string(report.Outcome))
	cmd.Printf("%s %d\n", shared.RenderLabel("verifier passes:"), report.IterationCount)
	cmd.Printf("%s %s\n", shared.RenderLabel("started:"), report.StartedAt.Local().Format(time.DateTime))
	cmd.Printf("%s %s\n", shared.RenderLabel("duration:"), report.Duration.Round(time.Second))
	cmd.Println()
	cmd.Println(shared.Header.Render("Problem"))
	cmd.Println(report.ProblemStatement)

	if report.Critique != nil {
		cmd.Println()
		cmd.Println(shared.Header.Render("Last critique"))
		cmd.Println(report.Critique.Render())
	}

	cmd.Println()
	cmd.Println(shared.Header.Render("Final solution"))
	cmd.Println(report.FinalSolution)

	if report.Error != "" {
		cmd.Println()
		cmd.Println(shared.RenderError(report.Error))
	}

	return nil
}
