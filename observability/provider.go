package observability

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentconductor/model"
)

// Instrument returns a provider middleware recording call counts, latency and
// token usage per model.
func Instrument(m *Metrics) model.Middleware {
	return func(next model.Provider) model.Provider {
		return model.ProviderFunc(func(ctx context.Context, req model.Request) (*model.Response, error) {
			start := time.Now()
			resp, err := next.Complete(ctx, req)
			m.RecordProviderCall(req.Model, callStatus(err), time.Since(start))
			if err == nil && resp != nil && resp.Usage != nil {
				m.RecordTokens(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return resp, err
		})
	}
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
