package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a provider with a token-bucket rate limiter.
// Correction loops can issue several model calls in quick succession;
// the limiter keeps repeated Verify/Correct passes inside provider QPS.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewRateLimitedProvider wraps a provider so that completions respect
// the given requests-per-second limit. A burst of 1 keeps calls strictly
// paced, matching the pipeline's sequential execution model.
func NewRateLimitedProvider(provider Provider, rps float64) *RateLimitedProvider {
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name returns the wrapped provider's name.
func (p *RateLimitedProvider) Name() string {
	return p.provider.Name()
}

// Capabilities returns the wrapped provider's capabilities.
func (p *RateLimitedProvider) Capabilities() Capabilities {
	return p.provider.Capabilities()
}

// Complete waits for limiter admission, then delegates to the wrapped
// provider. Returns ctx.Err() if the context ends while waiting.
func (p *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.provider.Complete(ctx, req)
}
