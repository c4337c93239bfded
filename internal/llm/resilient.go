package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/greenscore/internal/resilience"
)

// Resilient wraps a Capability with a per-call timeout, retries on
// transient failures, and an optional rate limiter and circuit breaker.
// Every error it returns matches ErrModelTimeout or ErrModelCallFailed.
type Resilient struct {
	next    Capability
	timeout time.Duration
	policy  resilience.RetryPolicy
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// ResilientOption configures a Resilient.
type ResilientOption func(*Resilient)

// WithTimeout bounds each attempt. An attempt that runs out of time is
// retried under the retry policy while the caller's context is still live.
// Zero disables the per-attempt bound.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) { r.timeout = d }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p resilience.RetryPolicy) ResilientOption {
	return func(r *Resilient) { r.policy = p }
}

// WithRateLimit paces calls to rps per second. Non-positive rps disables it.
func WithRateLimit(rps float64) ResilientOption {
	return func(r *Resilient) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker guards calls with b. A nil breaker disables it.
func WithBreaker(b *resilience.Breaker) ResilientOption {
	return func(r *Resilient) { r.breaker = b }
}

// NewResilient wraps next. Without options it makes a single attempt with
// no timeout.
func NewResilient(next Capability, opts ...ResilientOption) *Resilient {
	r := &Resilient{next: next}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Complete implements Capability.
func (r *Resilient) Complete(ctx context.Context, req Request) (*Response, error) {
	policy := r.policy
	retryable := policy.ShouldRetry
	if retryable == nil {
		retryable = resilience.IsTransient
	}
	policy.ShouldRetry = func(err error) bool {
		var te *attemptTimeout
		return errors.As(err, &te) || retryable(err)
	}

	resp, err := resilience.Guard(ctx, r.breaker, func(ctx context.Context) (*Response, error) {
		return resilience.Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return r.attempt(ctx, req)
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// attemptTimeout marks a failure caused by the per-attempt deadline rather
// than the caller's context. It still matches context.DeadlineExceeded.
type attemptTimeout struct {
	err error
}

func (e *attemptTimeout) Error() string { return e.err.Error() }

func (e *attemptTimeout) Unwrap() error { return e.err }

func (e *attemptTimeout) Is(target error) bool { return target == context.DeadlineExceeded }

func (r *Resilient) attempt(ctx context.Context, req Request) (*Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.next.Complete(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			zap.L().Warn("model call attempt timed out",
				zap.String("model", req.Model),
				zap.Duration("timeout", r.timeout),
			)
			return nil, &attemptTimeout{err: err}
		}
		return nil, err
	}

	zap.L().Debug("model call complete",
		zap.String("model", req.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &callError{kind: ErrModelTimeout, cause: err}
	}
	return &callError{kind: ErrModelCallFailed, cause: err}
}
