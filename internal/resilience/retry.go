// Package resilience bounds and retries calls to remote services.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how a failed call is re-issued.
type RetryPolicy struct {
	// MaxRetries is the number of re-issues after the first attempt.
	// Zero means the call is tried once.
	MaxRetries int

	// InitialBackoff is the delay before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay. Default: 5s.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each retry. Default: 2.0.
	Multiplier float64

	// Jitter randomizes each delay by up to ±Jitter of its value.
	Jitter float64

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(retry int, err error)
}

// NewRetryPolicy builds a policy from millisecond settings, filling
// defaults for non-positive values.
func NewRetryPolicy(maxRetries, initialBackoffMs, maxBackoffMs int) RetryPolicy {
	p := RetryPolicy{MaxRetries: maxRetries, Jitter: 0.2}
	if initialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p.withDefaults()
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// retries run out, or ctx is done. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	for retry := 0; ; retry++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || retry >= p.MaxRetries || !shouldRetry(err) {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(retry+1, err)
		}

		timer := time.NewTimer(p.backoff(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// backoff returns the delay before retry number retry+1.
func (p RetryPolicy) backoff(retry int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(retry))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// LogRetry returns an OnRetry callback that logs each retry.
func LogRetry(provider, model string) func(int, error) {
	return func(retry int, err error) {
		zap.L().Warn("retrying model call",
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}
}
