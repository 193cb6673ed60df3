package model

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentconductor/logging"
)

// Middleware decorates a Provider.
type Middleware func(Provider) Provider

// Chain applies middlewares so that the first one is the outermost.
func Chain(p Provider, mws ...Middleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

// RetryOptions configures WithRetry.
type RetryOptions struct {
	// MaxAttempts is the total number of calls including the first one.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is retried. Context errors never are.
	Retryable func(error) bool
	Logger    logging.Logger
}

// WithRetry retries failed calls with bounded exponential backoff
// (base, 2*base, 4*base ... capped at MaxDelay).
func WithRetry(optFns ...func(o *RetryOptions)) Middleware {
	opts := RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Retryable:   IsRetryable,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Retryable == nil {
		opts.Retryable = IsRetryable
	}
	logger := logging.OrNoOp(opts.Logger)

	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, req Request) (*Response, error) {
			var lastErr error
			for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
				if attempt > 1 {
					delay := Backoff(attempt-1, opts.BaseDelay, opts.MaxDelay)
					logger.Warn("provider.retry", "model", req.Model, "attempt", attempt, "delay", delay, "error", lastErr.Error())
					timer := time.NewTimer(delay)
					select {
					case <-ctx.Done():
						timer.Stop()
						return nil, ctx.Err()
					case <-timer.C:
					}
				}

				resp, err := next.Complete(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if isContextErr(err) || ctx.Err() != nil || !opts.Retryable(err) {
					return nil, err
				}
			}
			return nil, lastErr
		})
	}
}

// Backoff returns base * 2^(retry-1), capped at maxDelay.
func Backoff(retry int, base, maxDelay time.Duration) time.Duration {
	shift := retry - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 30 {
		shift = 30
	}
	delay := time.Duration(1<<uint(shift)) * base
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// IsRetryable is the default retry classifier: temporary API errors and
// unclassified errors are retried, context errors are not.
func IsRetryable(err error) bool {
	if err == nil || isContextErr(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WithRateLimit waits on limiter before every call.
func WithRateLimit(limiter *rate.Limiter) Middleware {
	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, req Request) (*Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, err
			}
			return next.Complete(ctx, req)
		})
	}
}

// NewLimiter builds a token bucket limiter allowing rps calls per second.
// A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type llmCallLogger interface {
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
}

// WithLogging emits one structured log line per provider call.
func WithLogging(logger logging.Logger) Middleware {
	logger = logging.OrNoOp(logger)
	return func(next Provider) Provider {
		return ProviderFunc(func(ctx context.Context, req Request) (*Response, error) {
			start := time.Now()
			resp, err := next.Complete(ctx, req)
			dur := time.Since(start)

			tokens := 0
			if resp != nil && resp.Usage != nil {
				tokens = resp.Usage.TotalTokens
			}

			if l, ok := logger.(llmCallLogger); ok {
				l.LogLLMCall(req.Model, tokens, dur, err == nil, err)
				return resp, err
			}
			if err != nil {
				logger.Error("LLM call failed", "model", req.Model, "duration", dur, "error", err.Error())
				return resp, err
			}
			logger.Info("LLM call completed", "model", req.Model, "token_count", tokens, "duration", dur)
			return resp, err
		})
	}
}
