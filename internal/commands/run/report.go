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

package run

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prooflab/refinery/internal/commands/shared"
	"github.com/prooflab/refinery/pkg/pipeline"
)

// renderReport prints the run result, as JSON with --json or styled
// text otherwise.
func renderReport(cmd *cobra.Command, report *pipeline.Report) error {
	if shared.GetJSON() {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	out := cmd.OutOrStdout()

	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Header.Render("Run "+report.RunID))
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("outcome:"), renderOutcome(report.Outcome))
	fmt.Fprintf(out, "%s %d\n", shared.RenderLabel("verifier passes:"), report.IterationCount)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("duration:"), report.Duration.Round(time.Second).String())
	fmt.Fprintf(out, "%s %d in / %d out\n", shared.RenderLabel("tokens:"),
		report.Usage.InputTokens, report.Usage.OutputTokens)

	if !shared.GetQuiet() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.Header.Render("Stages"))
		for i, entry := range report.History {
			fmt.Fprintf(out, "%2d. %s\n", i+1, entry.Stage)
		}
	}

	switch report.Outcome {
	case pipeline.OutcomeFailed:
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.RenderError("run failed in stage "+report.FailedStage+": "+report.Error))
		return nil
	case pipeline.OutcomeAborted:
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.RenderWarn("run aborted"))
		return nil
	}

	if report.Critique != nil && report.Critique.HasIssues() {
		fmt.Fprintln(out)
		fmt.Fprintln(out, shared.Header.Render("Outstanding critique"))
		fmt.Fprintln(out, report.Critique.Render())
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Header.Render("Final solution"))
	fmt.Fprintln(out, report.FinalSolution)

	return nil
}

// renderOutcome styles the outcome label.
func renderOutcome(outcome pipeline.Outcome) string {
	switch outcome {
	case pipeline.OutcomeSolved:
		return shared.StatusOK.Render(string(outcome))
	case pipeline.OutcomeFailed, pipeline.OutcomeAborted:
		return shared.StatusError.Render(string(outcome))
	default:
		return shared.StatusWarn.Render(string(outcome))
	}
}
