package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

const cleanVerdict = `{"verdict": "no_issues", "summary": "Every step is justified.", "findings": []}`

const flaggedVerdict = `{"verdict": "issues_found", "summary": "Gap in step 2.", "findings": [{"location": "step 2", "description": "justification gap"}]}`

// newTestDispatcher wires all four stages to one scripted provider so a
// single response list drives the whole run.
func newTestDispatcher(t *testing.T, provider *scriptedProvider, reviewer Reviewer, maxIterations int) *Dispatcher {
	t.Helper()

	client := NewModelClient(provider, ModelConfig{Model: "test-model"}, nil)
	dispatcher, err := NewDispatcher(Options{
		Generator:     client,
		SelfImprover:  client,
		Verifier:      client,
		Corrector:     client,
		Reviewer:      reviewer,
		MaxIterations: maxIterations,
	})
	require.NoError(t, err)
	return dispatcher
}

// failingReviewer fails the test if the human gate is ever consulted.
type failingReviewer struct {
	t *testing.T
}

func (r *failingReviewer) Review(context.Context, Critique) (Decision, error) {
	r.t.Fatal("reviewer consulted when it should not be")
	return DecisionRejected, nil
}

func TestRun_SolvedWithoutHumanGate(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", cleanVerdict}}
	dispatcher := newTestDispatcher(t, provider, &failingReviewer{t: t}, 3)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSolved, report.Outcome)
	assert.Equal(t, "S1'", report.FinalSolution)
	assert.Equal(t, 1, report.IterationCount)
	assert.Equal(t, 3, provider.calls)

	require.Len(t, report.History, 3)
	assert.Equal(t, StageGenerate, report.History[0].Stage)
	assert.Equal(t, StageSelfImprove, report.History[1].Stage)
	assert.Equal(t, StageVerify, report.History[2].Stage)

	// One usage record per model call.
	assert.Equal(t, 9, report.Usage.TotalTokens)
	assert.True(t, report.Succeeded())
}

func TestRun_IterationLimitSkipsHumanGate(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", flaggedVerdict}}
	dispatcher := newTestDispatcher(t, provider, &failingReviewer{t: t}, 1)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.NoError(t, err)

	assert.Equal(t, OutcomeIterationLimit, report.Outcome)
	assert.Equal(t, "S1'", report.FinalSolution)
	assert.Equal(t, 1, report.IterationCount)
	require.Len(t, report.History, 3)
	require.NotNil(t, report.Critique)
	assert.True(t, report.Critique.HasIssues())
}

func TestRun_ApprovedCritiqueLoopsThroughCorrection(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", flaggedVerdict, "S2", cleanVerdict}}
	reviewer := &CannedReviewer{Decisions: []Decision{DecisionApproved}}
	dispatcher := newTestDispatcher(t, provider, reviewer, 3)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSolved, report.Outcome)
	assert.Equal(t, "S2", report.FinalSolution)
	assert.Equal(t, 2, report.IterationCount)

	require.Len(t, report.History, 6)
	wantStages := []Stage{StageGenerate, StageSelfImprove, StageVerify, StageHumanReview, StageCorrect, StageVerify}
	for i, want := range wantStages {
		assert.Equal(t, want, report.History[i].Stage, "history entry %d", i)
	}
	assert.Equal(t, string(DecisionApproved), report.History[3].Output)
}

func TestRun_RejectedCritiqueEndsWithUncorrectedDraft(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", flaggedVerdict}}
	reviewer := &CannedReviewer{Decisions: []Decision{DecisionRejected}}
	dispatcher := newTestDispatcher(t, provider, reviewer, 3)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.NoError(t, err)

	assert.Equal(t, OutcomeHumanRejected, report.Outcome)
	assert.Equal(t, "S1'", report.FinalSolution)
	require.Len(t, report.History, 4)
	assert.Equal(t, StageHumanReview, report.History[3].Stage)
	assert.Equal(t, 3, provider.calls)
}

func TestRun_AbortedReviewEndsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", flaggedVerdict}}
	reviewer := ReviewerFunc(func(context.Context, Critique) (Decision, error) {
		return "", refineryerrors.ErrAborted
	})
	dispatcher := newTestDispatcher(t, provider, reviewer, 3)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.Error(t, err)
	assert.True(t, refineryerrors.IsAborted(err))

	assert.Equal(t, OutcomeAborted, report.Outcome)
	// The failed stage never commits: history holds only the three
	// completed stages.
	require.Len(t, report.History, 3)
	assert.Equal(t, "S1'", report.FinalSolution)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", cleanVerdict}}
	dispatcher := newTestDispatcher(t, provider, &CannedReviewer{}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := dispatcher.Run(ctx, "prove the bound")
	require.Error(t, err)
	assert.True(t, refineryerrors.IsAborted(err))
	assert.Equal(t, OutcomeAborted, report.Outcome)
	assert.Empty(t, report.History)
	assert.Zero(t, provider.calls)
}

func TestRun_MalformedVerifierOutputFailsRun(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"S1", "S1'", "not json at all"}}
	dispatcher := newTestDispatcher(t, provider, &failingReviewer{t: t}, 3)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.Error(t, err)

	var stageErr *refineryerrors.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, string(StageVerify), stageErr.Stage)
	assert.True(t, refineryerrors.IsMalformedResponse(err))

	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, string(StageVerify), report.FailedStage)
	assert.NotEmpty(t, report.Error)
	// Verify never committed, so the draft and history stop at SelfImprove.
	assert.Equal(t, "S1'", report.FinalSolution)
	require.Len(t, report.History, 2)
}

func TestRun_ProviderFailureFailsRun(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{&refineryerrors.ProviderError{Provider: "scripted", StatusCode: 500, Message: "boom"}},
	}
	dispatcher := newTestDispatcher(t, provider, &CannedReviewer{}, 3)

	report, err := dispatcher.Run(context.Background(), "prove the bound")
	require.Error(t, err)

	var stageErr *refineryerrors.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, string(StageGenerate), stageErr.Stage)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Empty(t, report.History)
}

func TestRun_EmptyProblemRejected(t *testing.T) {
	provider := &scriptedProvider{}
	dispatcher := newTestDispatcher(t, provider, &CannedReviewer{}, 3)

	_, err := dispatcher.Run(context.Background(), "")
	require.Error(t, err)
	var validation *refineryerrors.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestNewDispatcher_Validation(t *testing.T) {
	client := NewModelClient(&scriptedProvider{}, ModelConfig{Model: "m"}, nil)

	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "zero max iterations",
			opts: Options{
				Generator: client, SelfImprover: client, Verifier: client, Corrector: client,
				Reviewer: &CannedReviewer{},
			},
		},
		{
			name: "missing reviewer",
			opts: Options{
				Generator: client, SelfImprover: client, Verifier: client, Corrector: client,
				MaxIterations: 3,
			},
		},
		{
			name: "missing verifier client",
			opts: Options{
				Generator: client, SelfImprover: client, Corrector: client,
				Reviewer: &CannedReviewer{}, MaxIterations: 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(tt.opts)
			require.Error(t, err)
			var validation *refineryerrors.ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestCannedReviewer_RepeatsFinalDecision(t *testing.T) {
	reviewer := &CannedReviewer{Decisions: []Decision{DecisionApproved, DecisionRejected}}
	critique := Critique{Verdict: VerdictIssuesFound, Findings: []Finding{{Location: "l", Description: "d"}}}

	first, err := reviewer.Review(context.Background(), critique)
	require.NoError(t, err)
	second, err := reviewer.Review(context.Background(), critique)
	require.NoError(t, err)
	third, err := reviewer.Review(context.Background(), critique)
	require.NoError(t, err)

	assert.Equal(t, DecisionApproved, first)
	assert.Equal(t, DecisionRejected, second)
	assert.Equal(t, DecisionRejected, third)
}
