package providers

import (
	"context"
	"fmt"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/llm"
)

// Options configures provider construction.
type Options struct {
	// APIKey is the provider credential.
	APIKey string

	// RetryConfig configures the retry wrapper. Nil disables retries.
	RetryConfig *llm.RetryConfig

	// RequestsPerSecond, when > 0, wraps the provider with a rate limiter.
	RequestsPerSecond float64
}

// DefaultOptions returns Options with the default retry policy and no
// rate limit.
func DefaultOptions() Options {
	cfg := llm.DefaultRetryConfig()
	return Options{RetryConfig: &cfg}
}

// SupportedProviders lists the provider names New accepts.
func SupportedProviders() []string {
	return []string{"gemini", "openai"}
}

// New constructs a provider by name, applying the retry and rate-limit
// wrappers from opts. Unknown names return a ConfigError.
func New(ctx context.Context, name string, opts Options) (llm.Provider, error) {
	var (
		provider llm.Provider
		err      error
	)

	switch name {
	case "gemini":
		provider, err = NewGeminiProvider(ctx, opts.APIKey)
	case "openai":
		provider, err = NewOpenAIProvider(opts.APIKey)
	default:
		return nil, &refineryerrors.ConfigError{
			Key:    "provider",
			Reason: fmt.Sprintf("unknown provider %q (supported: gemini, openai)", name),
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.RetryConfig != nil {
		provider = llm.NewRetryableProvider(provider, *opts.RetryConfig)
	}
	if opts.RequestsPerSecond > 0 {
		provider = llm.NewRateLimitedProvider(provider, opts.RequestsPerSecond)
	}

	return provider, nil
}
