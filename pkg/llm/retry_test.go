package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

// mockProvider returns queued errors before succeeding.
type mockProvider struct {
	name      string
	errs      []error
	callCount int
	response  *CompletionResponse
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Capabilities() Capabilities { return Capabilities{} }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	idx := m.callCount
	m.callCount++
	if idx < len(m.errs) {
		return nil, m.errs[idx]
	}
	if m.response != nil {
		return m.response, nil
	}
	return &CompletionResponse{Content: "ok"}, nil
}

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryableProvider_SucceedsAfterTransientErrors(t *testing.T) {
	provider := &mockProvider{
		name: "gemini",
		errs: []error{
			&refineryerrors.ProviderError{Provider: "gemini", StatusCode: 503, Message: "unavailable"},
			&refineryerrors.ProviderError{Provider: "gemini", StatusCode: 429, Message: "rate limited"},
		},
	}

	wrapped := NewRetryableProvider(provider, fastRetryConfig(3))

	resp, err := wrapped.Complete(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, provider.callCount)
}

func TestRetryableProvider_NonRetryablePassesThrough(t *testing.T) {
	badRequest := &refineryerrors.ProviderError{Provider: "openai", StatusCode: 400, Message: "bad request"}
	provider := &mockProvider{name: "openai", errs: []error{badRequest}}

	wrapped := NewRetryableProvider(provider, fastRetryConfig(3))

	_, err := wrapped.Complete(context.Background(), CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, badRequest, err)
	assert.Equal(t, 1, provider.callCount)
}

func TestRetryableProvider_ExhaustsRetries(t *testing.T) {
	serverErr := &refineryerrors.ProviderError{Provider: "gemini", StatusCode: 500, Message: "boom"}
	provider := &mockProvider{
		name: "gemini",
		errs: []error{serverErr, serverErr, serverErr},
	}

	wrapped := NewRetryableProvider(provider, fastRetryConfig(2))

	_, err := wrapped.Complete(context.Background(), CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, provider.callCount)
}

func TestRetryableProvider_ContextCancelled(t *testing.T) {
	serverErr := &refineryerrors.ProviderError{Provider: "gemini", StatusCode: 500, Message: "boom"}
	provider := &mockProvider{name: "gemini", errs: []error{serverErr, serverErr, serverErr, serverErr}}

	wrapped := NewRetryableProvider(provider, RetryConfig{
		MaxRetries:   3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := wrapped.Complete(ctx, CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &refineryerrors.ProviderError{StatusCode: 500}, true},
		{"rate limit", &refineryerrors.ProviderError{StatusCode: 429}, true},
		{"client error", &refineryerrors.ProviderError{StatusCode: 400}, false},
		{"no status", &refineryerrors.ProviderError{Message: "dns failure"}, false},
		{"context cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"timeout", &refineryerrors.TimeoutError{Operation: "model call"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestRateLimitedProvider_Delegates(t *testing.T) {
	provider := &mockProvider{name: "gemini"}
	limited := NewRateLimitedProvider(provider, 100)

	resp, err := limited.Complete(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "gemini", limited.Name())
}

func TestTokenUsage_Add(t *testing.T) {
	total := TokenUsage{}
	total.Add(TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	total.Add(TokenUsage{InputTokens: 1, OutputTokens: 2, ThinkingTokens: 5, TotalTokens: 8})

	assert.Equal(t, 11, total.InputTokens)
	assert.Equal(t, 22, total.OutputTokens)
	assert.Equal(t, 5, total.ThinkingTokens)
	assert.Equal(t, 38, total.TotalTokens)
}
