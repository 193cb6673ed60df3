package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentconductor"
	"github.com/hupe1980/agentconductor/config"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/observability"
	"github.com/hupe1980/agentconductor/store"
)

// app holds everything a command builds from the configuration.
type app struct {
	cfg       *config.Config
	logger    *logging.ConductorLogger
	metrics   *observability.Metrics
	tracing   *observability.Tracing
	conductor *agentconductor.Conductor
	seeded    []core.Agent
}

type appOptions struct {
	// LogOutput receives structured logs.
	LogOutput io.Writer
	// Metrics registers collectors and the /metrics route.
	Metrics bool
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    opts.LogOutput,
		AddSource: cfg.Logging.AddSource,
	})

	a := &app{cfg: cfg, logger: logger}
	if opts.Metrics {
		a.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	a.tracing, err = observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	provider, err := agentconductor.BuildProvider(ctx, cfg.Provider, func(o *agentconductor.ProviderOptions) {
		o.Logger = logger.WithComponent("provider")
		o.Metrics = a.metrics
	})
	if err != nil {
		_ = a.tracing.Shutdown(ctx)
		return nil, err
	}

	assistants, err := agentconductor.BuildAssistants(cfg.Assistant, cfg.Provider, provider, func(o *agentconductor.ProviderOptions) {
		o.Logger = logger.WithComponent("assistant")
	})
	if err != nil {
		_ = a.tracing.Shutdown(ctx)
		return nil, err
	}

	archive, err := openStore(ctx, cfg.Store)
	if err != nil {
		_ = a.tracing.Shutdown(ctx)
		return nil, err
	}

	a.conductor, err = agentconductor.New(func(o *agentconductor.Options) {
		o.Provider = provider
		o.Store = archive
		o.Metrics = a.metrics
		o.TracerProvider = a.tracing.Provider()
		o.DefaultMaxTurns = cfg.Conductor.DefaultMaxTurns
		o.TurnTimeout = cfg.Conductor.TurnTimeout
		o.StopWhenIdle = cfg.Conductor.StopWhenIdle
		o.Assistants = assistants
		o.Logger = logger
	})
	if err != nil {
		_ = archive.Close()
		_ = a.tracing.Shutdown(ctx)
		return nil, err
	}

	return a, nil
}

// seed registers the agents listed in path, or in cfg.AgentsFile when path
// is empty. No file means no seeded agents.
func (a *app) seed(path string) error {
	if path == "" {
		path = a.cfg.AgentsFile
	}
	if path == "" {
		return nil
	}
	seeds, err := config.LoadAgents(path)
	if err != nil {
		return err
	}
	agents, err := a.conductor.SeedAgents(seeds)
	if err != nil {
		return fmt.Errorf("seed agents from %s: %w", path, err)
	}
	a.seeded = append(a.seeded, agents...)
	a.logger.Info("agents.seeded", "count", len(agents), "file", path)
	return nil
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.conductor.Close(), a.tracing.Shutdown(ctx))
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.TranscriptStore, error) {
	switch cfg.Backend {
	case "", config.StoreMemory:
		return store.NewInMemoryStore(func(o *store.InMemoryOptions) {
			o.MaxEntries = cfg.MaxEntries
		}), nil
	case config.StoreRedis:
		s, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
