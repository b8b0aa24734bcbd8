// Package pipeline implements the proof-refinement pipeline: a sequential
// state machine whose stages draft, refine, verify, and correct a
// mathematical proof, with a human approval gate before corrections are
// applied.
//
// The pipeline has six states and two decision points:
//
//	Generate -> SelfImprove -> Verify -> Done          (no issues, or cap hit)
//	                           Verify -> HumanReview   (issues, budget remains)
//	                           HumanReview -> Correct  (approved)
//	                           HumanReview -> Done     (rejected)
//	                           Correct -> Verify       (loop back)
//
// Execution is strictly sequential: one stage completes and commits its
// update before the next begins. Stages return deltas; only the
// dispatcher mutates the run state.
package pipeline

import "time"

// Stage identifies a node in the pipeline graph.
type Stage string

// Pipeline stages.
const (
	StageGenerate    Stage = "generate"
	StageSelfImprove Stage = "self_improve"
	StageVerify      Stage = "verify"
	StageHumanReview Stage = "human_review"
	StageCorrect     Stage = "correct"
	StageDone        Stage = "done"
)

// IsTerminal returns true if the stage is terminal (no further transitions).
func (s Stage) IsTerminal() bool {
	return s == StageDone
}

// Verdict is the tag of a verifier critique.
type Verdict string

const (
	// VerdictNoIssues means the verifier found the solution correct.
	VerdictNoIssues Verdict = "no_issues"

	// VerdictIssuesFound means the verifier flagged at least one finding.
	VerdictIssuesFound Verdict = "issues_found"
)

// Finding is one flagged issue in a critique, in the order the verifier
// reported it.
type Finding struct {
	// Location quotes the phrase or equation where the issue occurs.
	Location string `json:"location"`

	// Description explains the problem and its classification
	// (critical error or justification gap).
	Description string `json:"description"`
}

// Critique is the structured result of a verifier pass.
type Critique struct {
	// Verdict tags the critique: no issues, or issues found.
	Verdict Verdict `json:"verdict"`

	// Summary is the verifier's one-sentence overall assessment.
	Summary string `json:"summary"`

	// Findings lists every flagged issue in order. Empty when the
	// verdict is no_issues.
	Findings []Finding `json:"findings,omitempty"`
}

// HasIssues returns true when the critique flags at least one issue.
func (c Critique) HasIssues() bool {
	return c.Verdict == VerdictIssuesFound
}

// Decision records the human reviewer's judgment on a critique.
type Decision string

const (
	// DecisionPending means no decision has been recorded for the
	// current critique.
	DecisionPending Decision = "pending"

	// DecisionApproved means the reviewer endorsed the critique and the
	// pipeline should proceed to correction.
	DecisionApproved Decision = "approved"

	// DecisionRejected means the reviewer disagreed with the critique
	// and the run should end.
	DecisionRejected Decision = "rejected"
)

// Outcome is the terminal reason a run ended.
type Outcome string

const (
	// OutcomeSolved means the verifier reported no issues.
	OutcomeSolved Outcome = "solved"

	// OutcomeHumanRejected means the reviewer rejected the critique.
	OutcomeHumanRejected Outcome = "human-rejected"

	// OutcomeIterationLimit means the verification budget was exhausted.
	OutcomeIterationLimit Outcome = "iteration-limit"

	// OutcomeAborted means the operator cancelled the run.
	OutcomeAborted Outcome = "aborted"

	// OutcomeFailed means a stage failed (provider error, malformed
	// response, timeout).
	OutcomeFailed Outcome = "failed"
)

// HistoryEntry is one committed stage execution: the stage name and a
// snapshot of its output. History is append-only and never rewritten.
type HistoryEntry struct {
	// Stage is the stage that produced this entry.
	Stage Stage `json:"stage"`

	// Output is the snapshot of the stage's output (solution text,
	// rendered critique, or decision).
	Output string `json:"output"`

	// At is when the stage committed.
	At time.Time `json:"at"`
}

// State is the shared record that flows through every stage. It is
// passed by value; stages never mutate it directly. Only the dispatcher
// applies deltas, so no locking is needed.
type State struct {
	// ProblemStatement is the task input, set once at run start.
	ProblemStatement string `json:"problem_statement"`

	// CurrentSolution is the latest proof draft. Overwritten by the
	// Generate, SelfImprove, and Correct stages; never empty after
	// Generate commits.
	CurrentSolution string `json:"current_solution"`

	// Critique is the result of the most recent verifier pass, nil
	// before the first Verify.
	Critique *Critique `json:"critique,omitempty"`

	// HumanDecision is set only by the HumanReview stage and reset each
	// time the verifier reports new issues.
	HumanDecision Decision `json:"human_decision"`

	// IterationCount is incremented once per verifier pass. It is
	// monotonically non-decreasing and bounded by the configured
	// maximum.
	IterationCount int `json:"iteration_count"`

	// History records every committed stage execution in order.
	History []HistoryEntry `json:"history"`
}

// NewState creates the run record with empty defaults.
func NewState(problem string) State {
	return State{
		ProblemStatement: problem,
		HumanDecision:    DecisionPending,
	}
}

// Delta is a partial state update returned by a stage. Nil fields leave
// the corresponding record field untouched.
type Delta struct {
	// Solution replaces CurrentSolution when set.
	Solution *string

	// Critique replaces the current critique when set. Setting a
	// critique also advances IterationCount and resets HumanDecision.
	Critique *Critique

	// Decision replaces HumanDecision when set.
	Decision *Decision

	// Output is the history snapshot for this stage execution.
	Output string

	// Usage is the token consumption of the stage's model call, if any.
	Usage TokenUsage
}

// TokenUsage mirrors provider token accounting for per-run totals.
type TokenUsage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`
	TotalTokens    int `json:"total_tokens"`
}

// Add accumulates another usage record into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ThinkingTokens += other.ThinkingTokens
	u.TotalTokens += other.TotalTokens
}

// apply commits a stage's delta and returns the updated record. The
// history append happens here and nowhere else, so history length
// always equals the number of committed stage executions.
func (s State) apply(stage Stage, delta Delta, at time.Time) State {
	if delta.Solution != nil {
		s.CurrentSolution = *delta.Solution
	}
	if delta.Critique != nil {
		s.Critique = delta.Critique
		s.IterationCount++
		if delta.Critique.HasIssues() {
			s.HumanDecision = DecisionPending
		}
	}
	if delta.Decision != nil {
		s.HumanDecision = *delta.Decision
	}

	// Copy-on-append keeps earlier snapshots of the record valid.
	history := make([]HistoryEntry, len(s.History), len(s.History)+1)
	copy(history, s.History)
	s.History = append(history, HistoryEntry{
		Stage:  stage,
		Output: delta.Output,
		At:     at,
	})

	return s
}
