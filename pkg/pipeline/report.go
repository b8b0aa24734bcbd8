package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Render formats a critique as a numbered bug report, the form the
// corrector prompt and the review console both consume.
func (c Critique) Render() string {
	var b strings.Builder

	if c.Summary != "" {
		b.WriteString(c.Summary)
	}

	if len(c.Findings) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Findings:")
		for i, f := range c.Findings {
			fmt.Fprintf(&b, "\n%d. Location: %s\n   Issue: %s", i+1, f.Location, f.Description)
		}
	}

	return b.String()
}

// Report is the final result of a pipeline run: the terminal outcome,
// the last solution draft, and the full execution trail.
type Report struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// ProblemStatement is the task input the run was started with.
	ProblemStatement string `json:"problem_statement"`

	// FinalSolution is CurrentSolution at termination. For a rejected or
	// capped run this is the last uncorrected draft.
	FinalSolution string `json:"final_solution"`

	// Outcome is the terminal reason the run ended.
	Outcome Outcome `json:"outcome"`

	// IterationCount is the number of verifier passes performed.
	IterationCount int `json:"iteration_count"`

	// Critique is the last verifier critique, nil if the run failed
	// before the first Verify.
	Critique *Critique `json:"critique,omitempty"`

	// History records every committed stage execution in order.
	History []HistoryEntry `json:"history"`

	// Usage is the total token consumption across all model calls.
	Usage TokenUsage `json:"usage"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall-clock run time.
	Duration time.Duration `json:"duration"`

	// Error describes the failure for OutcomeFailed, empty otherwise.
	Error string `json:"error,omitempty"`

	// FailedStage names the stage that failed, empty unless the run failed.
	FailedStage string `json:"failed_stage,omitempty"`
}

// Succeeded reports whether the run reached a verified solution.
func (r *Report) Succeeded() bool {
	return r.Outcome == OutcomeSolved
}
