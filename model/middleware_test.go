package model

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentconductor/logging"
)

func fastRetry(attempts int) Middleware {
	return WithRetry(func(o *RetryOptions) {
		o.MaxAttempts = attempts
		o.BaseDelay = time.Millisecond
		o.MaxDelay = 2 * time.Millisecond
	})
}

func TestWithRetry_SucceedsAfterTemporaryFailures(t *testing.T) {
	s := NewScriptedProvider(
		Fail(&APIError{Provider: "openai", StatusCode: 503, Err: errors.New("unavailable")}),
		Fail(&APIError{Provider: "openai", StatusCode: 429, Err: errors.New("slow down")}),
		Reply("ok"),
	)

	resp, err := Chain(s, fastRetry(3)).Complete(context.Background(), userRequest("m", "x"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, 3, s.Calls())
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	failure := &APIError{Provider: "openai", StatusCode: 500, Err: errors.New("down")}
	s := NewScriptedProvider(Fail(failure), Fail(failure), Fail(failure), Reply("never"))

	_, err := Chain(s, fastRetry(2)).Complete(context.Background(), userRequest("m", "x"))
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 2, s.Calls())
}

func TestWithRetry_DoesNotRetryPermanentOrContextErrors(t *testing.T) {
	tests := map[string]error{
		"bad request": &APIError{Provider: "openai", StatusCode: 400, Err: errors.New("bad")},
		"canceled":    context.Canceled,
		"deadline":    context.DeadlineExceeded,
	}
	for name, failure := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewScriptedProvider(Fail(failure), Reply("never"))

			_, err := Chain(s, fastRetry(5)).Complete(context.Background(), userRequest("m", "x"))
			assert.ErrorIs(t, err, failure)
			assert.Equal(t, 1, s.Calls())
		})
	}
}

func TestWithRetry_StopsWhenContextCancelledDuringBackoff(t *testing.T) {
	s := NewScriptedProvider(Fail(errors.New("flaky")), Reply("never"))
	p := Chain(s, WithRetry(func(o *RetryOptions) {
		o.MaxAttempts = 2
		o.BaseDelay = time.Hour
		o.MaxDelay = time.Hour
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, userRequest("m", "x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.Calls())
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, Backoff(1, base, time.Second))
	assert.Equal(t, 200*time.Millisecond, Backoff(2, base, time.Second))
	assert.Equal(t, 400*time.Millisecond, Backoff(3, base, time.Second))
	assert.Equal(t, time.Second, Backoff(10, base, time.Second))
	assert.Equal(t, 100*time.Millisecond, Backoff(0, base, time.Second))
}

func TestWithRateLimit(t *testing.T) {
	s := NewScriptedProvider(Reply("a"), Reply("b"), Reply("c"))
	p := Chain(s, WithRateLimit(NewLimiter(1, 1)))

	_, err := p.Complete(context.Background(), userRequest("m", "x"))
	require.NoError(t, err)

	// The bucket is empty now; a short deadline must expire before the next token.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Complete(ctx, userRequest("m", "y"))
	assert.Error(t, err)
	assert.Equal(t, 1, s.Calls())
}

func TestNewLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
}

func TestWithLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = buf
	logger := logging.NewLogger(cfg)

	s := NewScriptedProvider(Reply("ok"), Fail(errors.New("boom")))
	p := Chain(s, WithLogging(logger))

	_, err := p.Complete(context.Background(), userRequest("gpt-4o", "x"))
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), userRequest("gpt-4o", "y"))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "LLM call completed")
	assert.Contains(t, out, "LLM call failed")
	assert.Contains(t, out, `"model":"gpt-4o"`)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Provider) Provider {
			return ProviderFunc(func(ctx context.Context, req Request) (*Response, error) {
				order = append(order, name)
				return next.Complete(ctx, req)
			})
		}
	}

	_, err := Chain(NewMockProvider(), mw("outer"), mw("inner")).Complete(context.Background(), userRequest("m", "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
