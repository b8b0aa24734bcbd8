package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/internal/log"
	"github.com/prooflab/refinery/pkg/llm"
)

// ModelConfig holds the per-call parameters for model-backed stages.
type ModelConfig struct {
	// Model is the provider-specific model identifier.
	Model string

	// Temperature controls randomness. The pipeline defaults to a low
	// temperature for consistent mathematical output.
	Temperature *float64

	// MaxTokens limits response length. Nil uses the provider default.
	MaxTokens *int

	// ThinkingBudget is the optional extended reasoning token budget,
	// passed through to providers that support it.
	ThinkingBudget *int

	// Timeout bounds each model call. Zero means no timeout.
	Timeout time.Duration
}

// ModelClient wraps a provider with the pipeline's call conventions:
// per-call timeout, timeout classification, and trace logging.
type ModelClient struct {
	provider llm.Provider
	cfg      ModelConfig
	logger   *slog.Logger
}

// NewModelClient creates a client for model-backed stages.
func NewModelClient(provider llm.Provider, cfg ModelConfig, logger *slog.Logger) *ModelClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelClient{provider: provider, cfg: cfg, logger: logger}
}

// complete performs one blocking model call. A deadline hit on the
// per-call timeout surfaces as a TimeoutError, distinct from provider
// failures, so the dispatcher can report it as such.
func (c *ModelClient) complete(ctx context.Context, system, user string, jsonOutput bool) (string, TokenUsage, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		Model: c.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.MessageRoleSystem, Content: system},
			{Role: llm.MessageRoleUser, Content: user},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ThinkingBudget: c.cfg.ThinkingBudget,
		JSONOutput:     jsonOutput,
	}

	log.Trace(c.logger, "model request",
		slog.String(log.ModelKey, c.cfg.Model),
		slog.String("prompt", user))

	started := time.Now()
	resp, err := c.provider.Complete(callCtx, req)
	elapsed := time.Since(started)

	if err != nil {
		// Distinguish our per-call deadline from a caller cancellation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", TokenUsage{}, &refineryerrors.TimeoutError{
				Operation: "model call",
				Duration:  c.cfg.Timeout,
				Cause:     err,
			}
		}
		return "", TokenUsage{}, err
	}

	c.logger.Debug("model call complete",
		slog.String(log.ProviderKey, c.provider.Name()),
		slog.String(log.ModelKey, resp.Model),
		slog.Int64(log.DurationKey, elapsed.Milliseconds()),
		slog.Int("total_tokens", resp.Usage.TotalTokens))

	log.Trace(c.logger, "model response", slog.String("content", resp.Content))

	usage := TokenUsage{
		InputTokens:    resp.Usage.InputTokens,
		OutputTokens:   resp.Usage.OutputTokens,
		ThinkingTokens: resp.Usage.ThinkingTokens,
		TotalTokens:    resp.Usage.TotalTokens,
	}

	return resp.Content, usage, nil
}

// StageRunner executes one pipeline stage against the current record
// and returns a partial update. Runners never mutate the record.
type StageRunner interface {
	// Stage returns the stage this runner implements.
	Stage() Stage

	// Run executes the stage. The returned delta is committed by the
	// dispatcher only when err is nil; a failed stage leaves the record
	// untouched.
	Run(ctx context.Context, state State) (Delta, error)
}

// generateStage produces the initial proof draft from the problem statement.
type generateStage struct {
	client *ModelClient
}

func (s *generateStage) Stage() Stage { return StageGenerate }

func (s *generateStage) Run(ctx context.Context, state State) (Delta, error) {
	content, usage, err := s.client.complete(ctx,
		generatorSystemPrompt,
		buildGeneratorPrompt(state.ProblemStatement),
		false)
	if err != nil {
		return Delta{}, err
	}

	return Delta{Solution: &content, Output: content, Usage: usage}, nil
}

// selfImproveStage refines the generator's draft with a second pass.
type selfImproveStage struct {
	client *ModelClient
}

func (s *selfImproveStage) Stage() Stage { return StageSelfImprove }

func (s *selfImproveStage) Run(ctx context.Context, state State) (Delta, error) {
	content, usage, err := s.client.complete(ctx,
		selfImproveSystemPrompt,
		buildSelfImprovePrompt(state.ProblemStatement, state.CurrentSolution),
		false)
	if err != nil {
		return Delta{}, err
	}

	return Delta{Solution: &content, Output: content, Usage: usage}, nil
}

// verifyStage grades the current draft and emits a structured critique.
type verifyStage struct {
	client *ModelClient
}

func (s *verifyStage) Stage() Stage { return StageVerify }

func (s *verifyStage) Run(ctx context.Context, state State) (Delta, error) {
	content, usage, err := s.client.complete(ctx,
		verifierSystemPrompt,
		buildVerifierPrompt(state.ProblemStatement, state.CurrentSolution),
		true)
	if err != nil {
		return Delta{}, err
	}

	critique, err := parseCritique(content)
	if err != nil {
		return Delta{}, err
	}

	return Delta{Critique: &critique, Output: critique.Render(), Usage: usage}, nil
}

// correctStage revises the draft according to an approved critique.
type correctStage struct {
	client *ModelClient
}

func (s *correctStage) Stage() Stage { return StageCorrect }

func (s *correctStage) Run(ctx context.Context, state State) (Delta, error) {
	if state.Critique == nil {
		return Delta{}, &refineryerrors.ValidationError{
			Field:   "critique",
			Message: "correct stage reached without a critique",
		}
	}

	content, usage, err := s.client.complete(ctx,
		correctorSystemPrompt,
		buildCorrectorPrompt(state.ProblemStatement, state.CurrentSolution, *state.Critique),
		false)
	if err != nil {
		return Delta{}, err
	}

	return Delta{Solution: &content, Output: content, Usage: usage}, nil
}

// humanReviewStage presents the critique to the operator and records
// the approve/reject decision. This is the only stage with side effects
// beyond logging and the model API.
type humanReviewStage struct {
	reviewer Reviewer
}

func (s *humanReviewStage) Stage() Stage { return StageHumanReview }

func (s *humanReviewStage) Run(ctx context.Context, state State) (Delta, error) {
	if state.Critique == nil || !state.Critique.HasIssues() {
		return Delta{}, &refineryerrors.ValidationError{
			Field:   "critique",
			Message: "human review reached without an issues-found critique",
		}
	}

	decision, err := s.reviewer.Review(ctx, *state.Critique)
	if err != nil {
		return Delta{}, err
	}

	switch decision {
	case DecisionApproved, DecisionRejected:
	default:
		return Delta{}, &refineryerrors.ValidationError{
			Field:   "decision",
			Message: "reviewer returned a non-terminal decision",
		}
	}

	return Delta{Decision: &decision, Output: string(decision)}, nil
}

// verifierReport is the wire shape of the verifier's JSON output.
type verifierReport struct {
	Verdict  string `json:"verdict"`
	Summary  string `json:"summary"`
	Findings []struct {
		Location    string `json:"location"`
		Description string `json:"description"`
	} `json:"findings"`
}

// parseCritique decodes the verifier's structured output. Anything that
// does not conform is a MalformedResponseError: treating unparsable
// output as "no issues" would mask exactly the flaws the verifier
// exists to catch.
func parseCritique(raw string) (Critique, error) {
	cleaned := stripCodeFences(raw)

	var report verifierReport
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return Critique{}, &refineryerrors.MalformedResponseError{
			Stage:   string(StageVerify),
			Reason:  "response is not a valid JSON object",
			Snippet: snippet(raw),
			Cause:   err,
		}
	}

	critique := Critique{Summary: strings.TrimSpace(report.Summary)}

	switch report.Verdict {
	case string(VerdictNoIssues):
		if len(report.Findings) > 0 {
			return Critique{}, &refineryerrors.MalformedResponseError{
				Stage:   string(StageVerify),
				Reason:  "verdict is no_issues but findings were reported",
				Snippet: snippet(raw),
			}
		}
		critique.Verdict = VerdictNoIssues

	case string(VerdictIssuesFound):
		if len(report.Findings) == 0 {
			return Critique{}, &refineryerrors.MalformedResponseError{
				Stage:   string(StageVerify),
				Reason:  "verdict is issues_found but no findings were reported",
				Snippet: snippet(raw),
			}
		}
		critique.Verdict = VerdictIssuesFound
		critique.Findings = make([]Finding, 0, len(report.Findings))
		for _, f := range report.Findings {
			critique.Findings = append(critique.Findings, Finding{
				Location:    f.Location,
				Description: f.Description,
			})
		}

	default:
		return Critique{}, &refineryerrors.MalformedResponseError{
			Stage:   string(StageVerify),
			Reason:  "verdict tag is missing or unknown",
			Snippet: snippet(raw),
		}
	}

	return critique, nil
}

// stripCodeFences removes a surrounding markdown code fence, which some
// models wrap around JSON output even when asked not to.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// snippet returns a short prefix of a raw response for error messages.
func snippet(raw string) string {
	const max = 60
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max]
}
