package providers

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/llm"
)

// OpenAIProvider implements the Provider interface for OpenAI chat models.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider instance.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, &refineryerrors.ConfigError{
			Key:    "providers.openai.api_key",
			Reason: "API key is required for OpenAI provider",
		}
	}

	return &OpenAIProvider{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Capabilities returns the features supported by this provider.
func (p *OpenAIProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		JSONOutput:     true,
		ThinkingBudget: false,
		Models:         openAIModels,
	}
}

// Complete sends a synchronous completion request to the chat completions API.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, &refineryerrors.ValidationError{
			Field:      "messages",
			Message:    "completion request must have at least one message",
			Suggestion: "Add at least one message to the completion request",
		}
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}

	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, openai.ChatCompletionMessage{
			Role:    mapOpenAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	if req.Temperature != nil {
		apiReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		apiReq.MaxTokens = *req.MaxTokens
	}
	if req.JSONOutput {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, p.wrapError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &refineryerrors.ProviderError{
			Provider:   "openai",
			Message:    "model returned an empty response",
			Suggestion: "Re-run; empty choices are usually transient",
			RequestID:  resp.ID,
		}
	}

	choice := resp.Choices[0]

	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: llm.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Model:     resp.Model,
		RequestID: resp.ID,
		Created:   time.Unix(resp.Created, 0),
	}, nil
}

// wrapError converts go-openai errors into typed provider errors.
func (p *OpenAIProvider) wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &refineryerrors.ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}

	return &refineryerrors.ProviderError{
		Provider: "openai",
		Message:  err.Error(),
		Cause:    err,
	}
}

// mapOpenAIRole converts the portable role to the API role string.
func mapOpenAIRole(role llm.MessageRole) string {
	switch role {
	case llm.MessageRoleSystem:
		return openai.ChatMessageRoleSystem
	case llm.MessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// mapOpenAIFinishReason converts the API finish reason to the portable one.
func mapOpenAIFinishReason(reason openai.FinishReason) llm.FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return llm.FinishReasonStop
	case openai.FinishReasonLength:
		return llm.FinishReasonLength
	case openai.FinishReasonContentFilter:
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// openAIModels contains model metadata for OpenAI.
var openAIModels = []llm.ModelInfo{
	{
		ID:              "gpt-4o",
		Name:            "GPT-4o",
		Tier:            llm.ModelTierStrategic,
		MaxOutputTokens: 16384,
		Description:     "Most capable model for complex reasoning tasks.",
	},
	{
		ID:              "gpt-4o-mini",
		Name:            "GPT-4o mini",
		Tier:            llm.ModelTierFast,
		MaxOutputTokens: 16384,
		Description:     "Fast and cost-effective for simple tasks.",
	},
}
