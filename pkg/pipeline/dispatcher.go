package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/internal/log"
)

// Options configures a Dispatcher.
type Options struct {
	// Generator, SelfImprover, Verifier, and Corrector are the model
	// clients for the four model-backed stages. All are required. They
	// may share one client or use different models per stage.
	Generator    *ModelClient
	SelfImprover *ModelClient
	Verifier     *ModelClient
	Corrector    *ModelClient

	// Reviewer supplies the human decision at the review gate. Required.
	Reviewer Reviewer

	// MaxIterations caps the number of verifier passes. Must be >= 1.
	MaxIterations int

	// Logger receives structured run logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Tracer emits one span per stage execution. Defaults to the global
	// tracer provider.
	Tracer trace.Tracer

	// Now overrides the clock for history timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher runs the pipeline: it executes stages strictly one at a
// time, commits each stage's delta to the run record, and decides the
// next stage from the updated record. It is the only component that
// mutates run state.
type Dispatcher struct {
	runners       map[Stage]StageRunner
	maxIterations int
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewDispatcher validates opts and builds a dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.MaxIterations < 1 {
		return nil, &refineryerrors.ValidationError{
			Field:      "max_iterations",
			Message:    fmt.Sprintf("must be at least 1, got %d", opts.MaxIterations),
			Suggestion: "set max_iterations to a positive verification budget",
		}
	}
	if opts.Reviewer == nil {
		return nil, &refineryerrors.ValidationError{
			Field:   "reviewer",
			Message: "a reviewer is required for the human gate",
		}
	}
	for name, client := range map[string]*ModelClient{
		"generator":     opts.Generator,
		"self_improver": opts.SelfImprover,
		"verifier":      opts.Verifier,
		"corrector":     opts.Corrector,
	} {
		if client == nil {
			return nil, &refineryerrors.ValidationError{
				Field:   name,
				Message: "model client is required",
			}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/prooflab/refinery/pkg/pipeline")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		runners: map[Stage]StageRunner{
			StageGenerate:    &generateStage{client: opts.Generator},
			StageSelfImprove: &selfImproveStage{client: opts.SelfImprover},
			StageVerify:      &verifyStage{client: opts.Verifier},
			StageHumanReview: &humanReviewStage{reviewer: opts.Reviewer},
			StageCorrect:     &correctStage{client: opts.Corrector},
		},
		maxIterations: opts.MaxIterations,
		logger:        logger,
		tracer:        tracer,
		now:           now,
	}, nil
}

// Run executes the pipeline for one problem statement. It always
// returns a report; err is non-nil when the run ended with the aborted
// or failed outcome, so callers can map it to an exit status. The
// report's history holds exactly one entry per committed stage.
func (d *Dispatcher) Run(ctx context.Context, problem string) (*Report, error) {
	if problem == "" {
		return nil, &refineryerrors.ValidationError{
			Field:   "problem",
			Message: "problem statement must not be empty",
		}
	}

	runID := uuid.New().String()
	logger := log.WithRunContext(d.logger, runID)
	started := d.now()

	logger.Info("run started",
		slog.Int("max_iterations", d.maxIterations))

	state := NewState(problem)
	var usage TokenUsage
	outcome := Outcome("")
	var runErr error
	failedStage := ""

	stage := StageGenerate
	for !stage.IsTerminal() {
		if ctx.Err() != nil {
			outcome = OutcomeAborted
			runErr = refineryerrors.ErrAborted
			break
		}

		delta, err := d.runStage(ctx, logger, runID, stage, state)
		if err != nil {
			if isAbort(err) {
				outcome = OutcomeAborted
				runErr = err
			} else {
				outcome = OutcomeFailed
				failedStage = string(stage)
				runErr = &refineryerrors.StageError{Stage: string(stage), Cause: err}
			}
			break
		}

		usage.Add(delta.Usage)
		state = state.apply(stage, delta, d.now())

		var next Stage
		next, outcome = d.transition(stage, state)
		stage = next
	}

	report := &Report{
		RunID:            runID,
		ProblemStatement: problem,
		FinalSolution:    state.CurrentSolution,
		Outcome:          outcome,
		IterationCount:   state.IterationCount,
		Critique:         state.Critique,
		History:          state.History,
		Usage:            usage,
		StartedAt:        started,
		Duration:         d.now().Sub(started),
		FailedStage:      failedStage,
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	logger.Info("run finished",
		slog.String(log.OutcomeKey, string(outcome)),
		slog.Int(log.IterationKey, state.IterationCount),
		slog.Int64(log.DurationKey, report.Duration.Milliseconds()),
		slog.Int("total_tokens", usage.TotalTokens))

	return report, runErr
}

// runStage executes one stage inside a span.
func (d *Dispatcher) runStage(ctx context.Context, logger *slog.Logger, runID string, stage Stage, state State) (Delta, error) {
	stageLogger := log.WithStageContext(logger, runID, string(stage))

	spanCtx, span := d.tracer.Start(ctx, "pipeline."+string(stage),
		trace.WithAttributes(
			attribute.String(log.RunIDKey, runID),
			attribute.String(log.StageKey, string(stage)),
			attribute.Int(log.IterationKey, state.IterationCount),
		))
	defer span.End()

	stageLogger.Info("stage started", slog.Int(log.IterationKey, state.IterationCount))

	started := d.now()
	delta, err := d.runners[stage].Run(spanCtx, state)
	elapsed := d.now().Sub(started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		stageLogger.Error("stage failed",
			slog.Int64(log.DurationKey, elapsed.Milliseconds()),
			slog.String("error", err.Error()))
		return Delta{}, err
	}

	span.SetStatus(codes.Ok, "")
	stageLogger.Info("stage complete",
		slog.Int64(log.DurationKey, elapsed.Milliseconds()),
		slog.Int("total_tokens", delta.Usage.TotalTokens))

	return delta, nil
}

// transition returns the next stage for the updated record, plus the
// terminal outcome when that stage is Done. The iteration cap is
// checked before the human gate: when the budget is spent there is no
// correction left to approve, so the reviewer is not consulted.
func (d *Dispatcher) transition(from Stage, state State) (Stage, Outcome) {
	switch from {
	case StageGenerate:
		return StageSelfImprove, ""

	case StageSelfImprove:
		return StageVerify, ""

	case StageVerify:
		if state.Critique != nil && !state.Critique.HasIssues() {
			return StageDone, OutcomeSolved
		}
		if state.IterationCount >= d.maxIterations {
			return StageDone, OutcomeIterationLimit
		}
		return StageHumanReview, ""

	case StageHumanReview:
		if state.HumanDecision == DecisionApproved {
			return StageCorrect, ""
		}
		return StageDone, OutcomeHumanRejected

	case StageCorrect:
		return StageVerify, ""

	default:
		return StageDone, OutcomeFailed
	}
}

// isAbort reports whether err represents operator cancellation rather
// than a stage fault.
func isAbort(err error) bool {
	return refineryerrors.IsAborted(err) ||
		errors.Is(err, context.Canceled)
}
