package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_Defaults(t *testing.T) {
	state := NewState("prove it")

	assert.Equal(t, "prove it", state.ProblemStatement)
	assert.Empty(t, state.CurrentSolution)
	assert.Nil(t, state.Critique)
	assert.Equal(t, DecisionPending, state.HumanDecision)
	assert.Zero(t, state.IterationCount)
	assert.Empty(t, state.History)
}

func TestApply_AppendsExactlyOneHistoryEntry(t *testing.T) {
	state := NewState("p")
	at := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	solution := "draft"
	state = state.apply(StageGenerate, Delta{Solution: &solution, Output: "draft"}, at)

	require.Len(t, state.History, 1)
	assert.Equal(t, StageGenerate, state.History[0].Stage)
	assert.Equal(t, "draft", state.History[0].Output)
	assert.Equal(t, at, state.History[0].At)
	assert.Equal(t, "draft", state.CurrentSolution)
}

func TestApply_CopyOnAppendKeepsSnapshotsValid(t *testing.T) {
	state := NewState("p")
	at := time.Now()

	s1 := "one"
	before := state.apply(StageGenerate, Delta{Solution: &s1, Output: "one"}, at)

	s2 := "two"
	after := before.apply(StageSelfImprove, Delta{Solution: &s2, Output: "two"}, at)

	require.Len(t, before.History, 1)
	require.Len(t, after.History, 2)
	assert.Equal(t, "one", before.CurrentSolution)
	assert.Equal(t, "two", after.CurrentSolution)
}

func TestApply_CritiqueWithIssuesAdvancesIterationAndResetsDecision(t *testing.T) {
	state := NewState("p")
	approved := DecisionApproved
	state = state.apply(StageHumanReview, Delta{Decision: &approved, Output: "approved"}, time.Now())
	require.Equal(t, DecisionApproved, state.HumanDecision)

	critique := Critique{
		Verdict:  VerdictIssuesFound,
		Summary:  "gap in step 2",
		Findings: []Finding{{Location: "step 2", Description: "justification gap"}},
	}
	state = state.apply(StageVerify, Delta{Critique: &critique, Output: critique.Render()}, time.Now())

	assert.Equal(t, 1, state.IterationCount)
	assert.Equal(t, DecisionPending, state.HumanDecision)
	require.NotNil(t, state.Critique)
	assert.True(t, state.Critique.HasIssues())
}

func TestApply_CleanCritiqueAdvancesIterationOnly(t *testing.T) {
	state := NewState("p")
	approved := DecisionApproved
	state = state.apply(StageHumanReview, Delta{Decision: &approved, Output: "approved"}, time.Now())

	critique := Critique{Verdict: VerdictNoIssues, Summary: "solid"}
	state = state.apply(StageVerify, Delta{Critique: &critique, Output: "solid"}, time.Now())

	assert.Equal(t, 1, state.IterationCount)
	// A clean verdict ends the run; the stale decision is irrelevant and
	// left as-is.
	assert.Equal(t, DecisionApproved, state.HumanDecision)
}

func TestStage_IsTerminal(t *testing.T) {
	for _, stage := range []Stage{StageGenerate, StageSelfImprove, StageVerify, StageHumanReview, StageCorrect} {
		assert.False(t, stage.IsTerminal(), string(stage))
	}
	assert.True(t, StageDone.IsTerminal())
}

func TestCritique_Render(t *testing.T) {
	critique := Critique{
		Verdict: VerdictIssuesFound,
		Summary: "The solution contains a critical error.",
		Findings: []Finding{
			{Location: "let x = 0", Description: "critical error: division by x below"},
			{Location: "hence the bound holds", Description: "justification gap: bound never derived"},
		},
	}

	rendered := critique.Render()
	assert.Contains(t, rendered, "The solution contains a critical error.")
	assert.Contains(t, rendered, "1. Location: let x = 0")
	assert.Contains(t, rendered, "2. Location: hence the bound holds")
	assert.Contains(t, rendered, "justification gap: bound never derived")
}

func TestCritique_RenderCleanVerdict(t *testing.T) {
	critique := Critique{Verdict: VerdictNoIssues, Summary: "Every step is justified."}
	assert.Equal(t, "Every step is justified.", critique.Render())
}
