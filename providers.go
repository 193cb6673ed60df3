package agentconductor

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentconductor/assistant"
	"github.com/hupe1980/agentconductor/config"
	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/model"
	"github.com/hupe1980/agentconductor/model/anthropic"
	"github.com/hupe1980/agentconductor/model/gemini"
	"github.com/hupe1980/agentconductor/model/openai"
	"github.com/hupe1980/agentconductor/observability"
)

// ErrNoProvider is returned when the configuration enables no backend.
var ErrNoProvider = errors.New("no completion provider configured")

// ProviderOptions configures BuildProvider.
type ProviderOptions struct {
	Logger logging.Logger
	// Metrics adds the instrumentation middleware when set.
	Metrics *observability.Metrics
}

// BuildProvider assembles the provider stack described by cfg: a Router over
// every backend that has credentials (or only the mock backend in mock mode),
// decorated with logging, metrics, retry and rate limiting.
func BuildProvider(ctx context.Context, cfg config.ProviderConfig, optFns ...func(o *ProviderOptions)) (model.Provider, error) {
	opts := ProviderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	fallback := cfg.Fallback
	if cfg.Mock {
		fallback = model.ProviderMock
	}
	router := model.NewRouter(func(o *model.RouterOptions) { o.Fallback = fallback })

	if cfg.Mock {
		router.Register(model.ProviderMock, model.NewMockProvider())
	} else {
		if cfg.OpenAI.Enabled() {
			router.Register(model.ProviderOpenAI, openai.New(func(o *openai.Options) {
				o.APIKey = cfg.OpenAI.APIKey
				o.BaseURL = cfg.OpenAI.BaseURL
				if cfg.OpenAI.Temperature > 0 {
					o.Temperature = cfg.OpenAI.Temperature
				}
				if cfg.OpenAI.MaxTokens > 0 {
					o.MaxCompletionTokens = cfg.OpenAI.MaxTokens
				}
				if cfg.OpenAI.Model != "" {
					o.Model = cfg.OpenAI.Model
				}
			}))
		}
		if cfg.Anthropic.Enabled() {
			router.Register(model.ProviderAnthropic, anthropic.New(func(o *anthropic.Options) {
				o.APIKey = cfg.Anthropic.APIKey
				o.BaseURL = cfg.Anthropic.BaseURL
				if cfg.Anthropic.Temperature > 0 {
					o.Temperature = cfg.Anthropic.Temperature
				}
				if cfg.Anthropic.MaxTokens > 0 {
					o.MaxTokens = cfg.Anthropic.MaxTokens
				}
				if cfg.Anthropic.Model != "" {
					o.Model = anthropicsdk.Model(cfg.Anthropic.Model)
				}
			}))
		}
		if cfg.Gemini.Enabled() {
			p, err := gemini.New(ctx, func(o *gemini.Options) {
				o.APIKey = cfg.Gemini.APIKey
				o.BaseURL = cfg.Gemini.BaseURL
				if cfg.Gemini.Temperature > 0 {
					o.Temperature = float32(cfg.Gemini.Temperature)
				}
				if cfg.Gemini.Model != "" {
					o.Model = cfg.Gemini.Model
				}
			})
			if err != nil {
				return nil, fmt.Errorf("gemini provider: %w", err)
			}
			router.Register(model.ProviderGemini, p)
		}
		if fallback == model.ProviderMock {
			router.Register(model.ProviderMock, model.NewMockProvider())
		}
	}

	names := router.Names()
	if len(names) == 0 {
		return nil, ErrNoProvider
	}
	if fallback != "" && !router.Has(fallback) {
		return nil, fmt.Errorf("fallback provider %q has no credentials", fallback)
	}
	logger.Info("provider.configured", "backends", names, "fallback", fallback)

	mws := []model.Middleware{model.WithLogging(logger)}
	if opts.Metrics != nil {
		mws = append(mws, observability.Instrument(opts.Metrics))
	}
	mws = append(mws, model.WithRetry(func(o *model.RetryOptions) {
		o.MaxAttempts = cfg.Retry.MaxAttempts
		o.BaseDelay = cfg.Retry.BaseDelay
		o.MaxDelay = cfg.Retry.MaxDelay
		o.Logger = logger
	}))
	if cfg.RateLimit.RPS > 0 {
		mws = append(mws, model.WithRateLimit(model.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	}

	return model.Chain(router, mws...), nil
}

// BuildAssistants creates the assistant service described by cfg, or nil
// when the feature is disabled. The local backend answers with provider.
func BuildAssistants(cfg config.AssistantConfig, providers config.ProviderConfig, provider model.Provider, optFns ...func(o *ProviderOptions)) (*assistant.Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := ProviderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	backend := cfg.Backend
	if backend == "" || backend == config.AssistantBackendAuto {
		backend = config.AssistantBackendLocal
		if providers.OpenAI.Enabled() && !providers.Mock {
			backend = config.AssistantBackendOpenAI
		}
	}

	var b assistant.Backend
	switch backend {
	case config.AssistantBackendOpenAI:
		if !providers.OpenAI.Enabled() {
			return nil, fmt.Errorf("assistant backend %q: %w", backend, ErrNoProvider)
		}
		b = openai.NewAssistantBackend(func(o *openai.Options) {
			o.APIKey = providers.OpenAI.APIKey
			o.BaseURL = providers.OpenAI.BaseURL
		})
	case config.AssistantBackendLocal:
		if provider == nil {
			return nil, fmt.Errorf("assistant backend %q: %w", backend, ErrNoProvider)
		}
		b = assistant.NewLocalBackend(provider)
	default:
		return nil, fmt.Errorf("unknown assistant backend %q", backend)
	}
	logger.Info("assistant.configured", "backend", backend, "poll_interval", cfg.PollInterval)

	return assistant.NewService(b, func(o *assistant.Options) {
		o.Logger = logger
		o.PollInterval = cfg.PollInterval
	}), nil
}
