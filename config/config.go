// Package config loads runtime configuration from defaults, an optional YAML
// file and CONDUCTOR_-prefixed environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/model"
	"github.com/hupe1980/agentconductor/observability"
)

// EnvPrefix prefixes every environment override, e.g. CONDUCTOR_SERVER_ADDR.
const EnvPrefix = "CONDUCTOR"

// DefaultConfigName is looked up in the working directory when no explicit
// config file is given.
const DefaultConfigName = "conductor"

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Assistant backends.
const (
	AssistantBackendAuto   = "auto"
	AssistantBackendOpenAI = "openai"
	AssistantBackendLocal  = "local"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Conductor  ConductorConfig `mapstructure:"conductor"`
	Provider   ProviderConfig  `mapstructure:"provider"`
	Store      StoreConfig     `mapstructure:"store"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Tracing    TracingConfig   `mapstructure:"tracing"`
	Assistant  AssistantConfig `mapstructure:"assistant"`
	AgentsFile string          `mapstructure:"agents_file"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RunTimeout bounds a whole /start-conversation request.
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	MaxTurnsLimit int           `mapstructure:"max_turns_limit"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
}

// ConductorConfig configures run defaults.
type ConductorConfig struct {
	DefaultMaxTurns int           `mapstructure:"default_max_turns"`
	TurnTimeout     time.Duration `mapstructure:"turn_timeout"`
	StopWhenIdle    bool          `mapstructure:"stop_when_idle"`
}

// ProviderConfig configures completion providers and their decorators.
type ProviderConfig struct {
	// Fallback names the provider used for model ids no prefix matches.
	Fallback string `mapstructure:"fallback"`
	// Mock replaces every backend with the canned mock provider.
	Mock      bool            `mapstructure:"mock"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	OpenAI    BackendConfig   `mapstructure:"openai"`
	Anthropic BackendConfig   `mapstructure:"anthropic"`
	Gemini    BackendConfig   `mapstructure:"gemini"`
}

// RetryConfig configures model.WithRetry.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RateLimitConfig configures model.WithRateLimit. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// BackendConfig holds per-vendor settings. A backend without an API key is
// not registered.
type BackendConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
}

// Enabled reports whether the backend has credentials.
func (b BackendConfig) Enabled() bool { return b.APIKey != "" }

// StoreConfig selects the transcript archive.
type StoreConfig struct {
	Backend    string      `mapstructure:"backend"`
	MaxEntries int         `mapstructure:"max_entries"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis transcript store.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AssistantConfig configures the /assistant, /thread and /run routes.
// Backend auto uses the OpenAI Assistants API when OpenAI has credentials
// and mocking is off, and the in-process backend otherwise.
type AssistantConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Backend      string        `mapstructure:"backend"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.run_timeout", "0s")
	v.SetDefault("server.max_turns_limit", 50)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("conductor.default_max_turns", 6)
	v.SetDefault("conductor.turn_timeout", "0s")
	v.SetDefault("conductor.stop_when_idle", false)

	v.SetDefault("provider.fallback", "")
	v.SetDefault("provider.mock", false)
	v.SetDefault("provider.retry.max_attempts", 3)
	v.SetDefault("provider.retry.base_delay", "500ms")
	v.SetDefault("provider.retry.max_delay", "8s")
	v.SetDefault("provider.rate_limit.rps", 0)
	v.SetDefault("provider.rate_limit.burst", 1)
	for _, backend := range []string{"openai", "anthropic", "gemini"} {
		v.SetDefault("provider."+backend+".api_key", "")
		v.SetDefault("provider."+backend+".base_url", "")
		v.SetDefault("provider."+backend+".model", "")
		v.SetDefault("provider."+backend+".temperature", 0)
		v.SetDefault("provider."+backend+".max_tokens", 0)
	}

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.max_entries", 1000)
	v.SetDefault("store.redis.addr", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "agentconductor:")
	v.SetDefault("store.redis.ttl", "0s")

	v.SetDefault("assistant.enabled", true)
	v.SetDefault("assistant.backend", AssistantBackendAuto)
	v.SetDefault("assistant.poll_interval", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("tracing.exporter", observability.ExporterNone)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", observability.DefaultServiceName)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("agents_file", "")
}

// Load reads configuration. An empty path looks for conductor.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// vendor variables are honoured when no prefixed override is set
	_ = v.BindEnv("provider.openai.api_key", EnvPrefix+"_PROVIDER_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("provider.anthropic.api_key", EnvPrefix+"_PROVIDER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("provider.gemini.api_key", EnvPrefix+"_PROVIDER_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration Load produces without file or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.RunTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		add("server timeouts must not be negative")
	}
	if c.Server.MaxTurnsLimit < 0 {
		add("server.max_turns_limit must not be negative")
	}
	if c.Conductor.DefaultMaxTurns < 1 {
		add("conductor.default_max_turns must be at least 1, got %d", c.Conductor.DefaultMaxTurns)
	}
	if c.Server.MaxTurnsLimit > 0 && c.Conductor.DefaultMaxTurns > c.Server.MaxTurnsLimit {
		add("conductor.default_max_turns exceeds server.max_turns_limit")
	}
	if c.Conductor.TurnTimeout < 0 {
		add("conductor.turn_timeout must not be negative")
	}

	switch c.Provider.Fallback {
	case "", model.ProviderOpenAI, model.ProviderAnthropic, model.ProviderGemini, model.ProviderMock:
	default:
		add("provider.fallback: unknown provider %q", c.Provider.Fallback)
	}
	if c.Provider.Retry.MaxAttempts < 1 {
		add("provider.retry.max_attempts must be at least 1")
	}
	if c.Provider.Retry.BaseDelay < 0 || c.Provider.Retry.MaxDelay < c.Provider.Retry.BaseDelay {
		add("provider.retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	if c.Provider.RateLimit.RPS > 0 && c.Provider.RateLimit.Burst < 1 {
		add("provider.rate_limit.burst must be at least 1")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			add("store.redis.addr is required for the redis backend")
		}
	default:
		add("store.backend: unknown backend %q", c.Store.Backend)
	}

	switch c.Assistant.Backend {
	case AssistantBackendAuto, AssistantBackendLocal:
	case AssistantBackendOpenAI:
		if c.Assistant.Enabled && !c.Provider.OpenAI.Enabled() {
			add("assistant.backend openai requires provider.openai.api_key")
		}
	default:
		add("assistant.backend: unknown backend %q", c.Assistant.Backend)
	}
	if c.Assistant.PollInterval <= 0 {
		add("assistant.poll_interval must be positive")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		add("logging.format must be json or text, got %q", c.Logging.Format)
	}

	switch c.Tracing.Exporter {
	case "", observability.ExporterNone, observability.ExporterStdout, observability.ExporterOTLP:
	default:
		add("tracing.exporter: unknown exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio must be within [0,1]")
	}

	return errors.Join(errs...)
}
