// Package extraction runs an ordered chain of document-analysis
// providers. Each provider attempt is retried with exponential backoff
// on transient errors and abandoned immediately on non-retryable ones;
// on exhaustion the chain falls through to the next provider.
package extraction

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/logger"
)

// RetryPolicy configures per-provider retries within the chain.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between retries.
	Multiplier float64
}

// DefaultRetryPolicy suits most provider APIs.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Chain calls providers in priority order until one succeeds.
type Chain struct {
	providers []driven.ExtractionProvider
	policy    RetryPolicy
	limiter   *rate.Limiter
	opts      driven.AnalyzeOptions

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the chain.
type Option func(*Chain)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Chain) {
		c.policy = p
	}
}

// WithRateLimit throttles provider calls across the chain to r calls
// per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Chain) {
		if r > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithAnalyzeOptions sets the options passed to every provider call.
func WithAnalyzeOptions(opts driven.AnalyzeOptions) Option {
	return func(c *Chain) {
		c.opts = opts
	}
}

// NewChain creates a provider chain. Providers are tried in the order
// given; configuration decides that order, not runtime inspection.
func NewChain(providers []driven.ExtractionProvider, opts ...Option) *Chain {
	c := &Chain{
		providers: providers,
		policy:    DefaultRetryPolicy(),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract runs the chain for one blob. It returns the normalised
// extraction and the attempt history, or a terminal
// *domain.ExtractionError carrying the full history when every
// provider is exhausted. No persistence happens here; results pass
// upward to the orchestrator.
func (c *Chain) Extract(ctx context.Context, blob driven.Blob) (*domain.NormalizedExtraction, []domain.AttemptRecord, error) {
	if len(c.providers) == 0 {
		return nil, nil, &domain.ExtractionError{}
	}

	var attempts []domain.AttemptRecord

	for _, provider := range c.providers {
		result, providerAttempts, err := c.tryProvider(ctx, provider, blob)
		attempts = append(attempts, providerAttempts...)

		if err == nil {
			logger.Info("Extraction succeeded with provider %s (%d attempts total)",
				provider.Name(), len(attempts))
			return result, attempts, nil
		}

		if ctx.Err() != nil {
			return nil, attempts, fmt.Errorf("extraction: %w", ctx.Err())
		}

		logger.Warn("Provider %s exhausted: %v, falling through", provider.Name(), err)
	}

	return nil, attempts, &domain.ExtractionError{Attempts: attempts}
}

// tryProvider runs one provider with retries on transient errors.
func (c *Chain) tryProvider(
	ctx context.Context, provider driven.ExtractionProvider, blob driven.Blob,
) (*domain.NormalizedExtraction, []domain.AttemptRecord, error) {
	var attempts []domain.AttemptRecord
	var lastErr error

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			logger.Debug("Provider %s retry %d after %s", provider.Name(), attempt, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, attempts, err
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, attempts, err
			}
		}

		start := time.Now()
		result, err := provider.Analyze(ctx, blob, c.opts)
		elapsed := time.Since(start)

		if err == nil {
			attempts = append(attempts, domain.AttemptRecord{
				Provider: provider.Name(),
				Duration: elapsed,
			})
			return result, attempts, nil
		}

		attempts = append(attempts, domain.AttemptRecord{
			Provider: provider.Name(),
			Error:    err.Error(),
			Duration: elapsed,
		})
		lastErr = err

		if ctx.Err() != nil {
			// Cancellation of the ingestion task itself, not a
			// provider-side timeout
			return nil, attempts, err
		}

		if !domain.IsTransient(err) {
			// Unsupported format and other permanent failures go
			// straight to the next provider
			return nil, attempts, err
		}
	}

	return nil, attempts, lastErr
}

// backoffDelay computes the capped exponential delay with jitter for
// the given retry attempt (1-based).
func (c *Chain) backoffDelay(attempt int) time.Duration {
	delay := float64(c.policy.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.policy.Multiplier
	}
	if max := float64(c.policy.MaxDelay); delay > max {
		delay = max
	}
	// Up to 25% jitter keeps concurrent workers from retrying in
	// lockstep
	delay += delay * 0.25 * rand.Float64()
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
