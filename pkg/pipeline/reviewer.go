package pipeline

import "context"

// Reviewer supplies the human decision for an issues-found critique.
// Implementations block until a terminal decision is made; an aborted
// review returns errors.ErrAborted from pkg/errors.
type Reviewer interface {
	// Review presents the critique and returns approved or rejected.
	Review(ctx context.Context, critique Critique) (Decision, error)
}

// CannedReviewer returns a fixed sequence of decisions, one per call.
// When the sequence runs out it repeats the final decision. Used for
// non-interactive runs and tests.
type CannedReviewer struct {
	// Decisions is consumed in order across calls.
	Decisions []Decision

	calls int
}

// Review returns the next canned decision.
func (r *CannedReviewer) Review(_ context.Context, _ Critique) (Decision, error) {
	idx := r.calls
	if idx >= len(r.Decisions) {
		idx = len(r.Decisions) - 1
	}
	r.calls++
	if idx < 0 {
		return DecisionRejected, nil
	}
	return r.Decisions[idx], nil
}

// ReviewerFunc adapts a function to the Reviewer interface.
type ReviewerFunc func(ctx context.Context, critique Critique) (Decision, error)

// Review calls f.
func (f ReviewerFunc) Review(ctx context.Context, critique Critique) (Decision, error) {
	return f(ctx, critique)
}
