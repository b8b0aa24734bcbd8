// Package providers contains concrete implementations of LLM providers.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/llm"
)

// GeminiProvider implements the Provider interface for Google's Gemini
// models via the google.golang.org/genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider instance.
// The apiKey should be retrieved from secure storage (keychain or env).
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, &refineryerrors.ConfigError{
			Key:    "providers.gemini.api_key",
			Reason: "API key is required for Gemini provider",
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &refineryerrors.ProviderError{
			Provider: "gemini",
			Message:  "failed to create client",
			Cause:    err,
		}
	}

	return &GeminiProvider{client: client}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Capabilities returns the features supported by this provider.
func (p *GeminiProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		JSONOutput:     true,
		ThinkingBudget: true,
		Models:         geminiModels,
	}
}

// Complete sends a synchronous completion request to the Gemini API.
func (p *GeminiProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	requestID := uuid.New().String()

	if len(req.Messages) == 0 {
		return nil, &refineryerrors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}

	config := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.MessageRoleSystem:
			// Gemini takes system text as a separate instruction field
			if config.SystemInstruction == nil {
				config.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
			} else {
				config.SystemInstruction.Parts = append(config.SystemInstruction.Parts,
					genai.NewPartFromText(msg.Content))
			}
		case llm.MessageRoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case llm.MessageRoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}

	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.JSONOutput {
		config.ResponseMIMEType = "application/json"
	}
	if req.ThinkingBudget != nil {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(*req.ThinkingBudget)),
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, p.wrapError(err, requestID)
	}

	text := resp.Text()
	if text == "" {
		return nil, &refineryerrors.ProviderError{
			Provider:   "gemini",
			Message:    "model returned an empty response",
			Suggestion: "Re-run; empty candidates are usually transient or safety-filtered",
			RequestID:  requestID,
		}
	}

	completion := &llm.CompletionResponse{
		Content:      text,
		FinishReason: llm.FinishReasonStop,
		Model:        req.Model,
		RequestID:    requestID,
		Created:      time.Now(),
	}

	if len(resp.Candidates) > 0 {
		completion.FinishReason = mapGeminiFinishReason(resp.Candidates[0].FinishReason)
	}

	if resp.UsageMetadata != nil {
		completion.Usage = llm.TokenUsage{
			InputTokens:    int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:   int(resp.UsageMetadata.CandidatesTokenCount),
			ThinkingTokens: int(resp.UsageMetadata.ThoughtsTokenCount),
			TotalTokens:    int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return completion, nil
}

// wrapError converts genai SDK errors into typed provider errors.
func (p *GeminiProvider) wrapError(err error, requestID string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &refineryerrors.ProviderError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			RequestID:  requestID,
			Cause:      err,
		}
	}

	return &refineryerrors.ProviderError{
		Provider:  "gemini",
		Message:   err.Error(),
		RequestID: requestID,
		Cause:     err,
	}
}

// mapGeminiFinishReason converts the SDK finish reason to the portable one.
func mapGeminiFinishReason(reason genai.FinishReason) llm.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return llm.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// geminiModels contains model metadata for Gemini.
var geminiModels = []llm.ModelInfo{
	{
		ID:               "gemini-2.5-pro",
		Name:             "Gemini 2.5 Pro",
		Tier:             llm.ModelTierStrategic,
		MaxOutputTokens:  65536,
		SupportsThinking: true,
		Description:      "More capable reasoning, better for complex mathematics.",
	},
	{
		ID:               "gemini-2.5-flash",
		Name:             "Gemini 2.5 Flash",
		Tier:             llm.ModelTierFast,
		MaxOutputTokens:  65536,
		SupportsThinking: true,
		Description:      "Faster responses, good for general tasks.",
	},
	{
		ID:              "gemini-2.0-flash",
		Name:            "Gemini 2.0 Flash",
		Tier:            llm.ModelTierFast,
		MaxOutputTokens: 8192,
		Description:     "Previous generation fast model.",
	},
}
