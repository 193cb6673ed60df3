package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 6, cfg.Conductor.DefaultMaxTurns)
	assert.Equal(t, 3, cfg.Provider.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Provider.Retry.BaseDelay)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.True(t, cfg.Assistant.Enabled)
	assert.Equal(t, AssistantBackendAuto, cfg.Assistant.Backend)
	assert.Equal(t, 2*time.Second, cfg.Assistant.PollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "conductor.yaml", `
server:
  addr: ":8080"
conductor:
  default_max_turns: 4
  turn_timeout: 45s
provider:
  fallback: mock
  openai:
    model: gpt-4o-mini
store:
  backend: redis
  redis:
    addr: localhost:6379
    ttl: 24h
logging:
  level: debug
  format: json
assistant:
  backend: local
  poll_interval: 500ms
`)
	t.Setenv("CONDUCTOR_SERVER_ADDR", ":9090")
	t.Setenv("CONDUCTOR_CONDUCTOR_STOP_WHEN_IDLE", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr, "env beats file")
	assert.Equal(t, 4, cfg.Conductor.DefaultMaxTurns)
	assert.Equal(t, 45*time.Second, cfg.Conductor.TurnTimeout)
	assert.True(t, cfg.Conductor.StopWhenIdle)
	assert.Equal(t, "mock", cfg.Provider.Fallback)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.OpenAI.Model)
	assert.Equal(t, "sk-test", cfg.Provider.OpenAI.APIKey)
	assert.True(t, cfg.Provider.OpenAI.Enabled())
	assert.False(t, cfg.Provider.Anthropic.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, AssistantBackendLocal, cfg.Assistant.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Assistant.PollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedKeyWins(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "vendor")
	t.Setenv("CONDUCTOR_PROVIDER_ANTHROPIC_API_KEY", "prefixed")

	cfg, err := Load(writeFile(t, "c.yaml", "{}"))
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Provider.Anthropic.APIKey)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"max turns", func(c *Config) { c.Conductor.DefaultMaxTurns = 0 }, "default_max_turns"},
		{"over limit", func(c *Config) { c.Conductor.DefaultMaxTurns = 100 }, "exceeds server.max_turns_limit"},
		{"fallback", func(c *Config) { c.Provider.Fallback = "cohere" }, "unknown provider"},
		{"retry", func(c *Config) { c.Provider.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"delays", func(c *Config) { c.Provider.Retry.MaxDelay = time.Millisecond }, "base_delay <= max_delay"},
		{"burst", func(c *Config) { c.Provider.RateLimit.RPS = 2; c.Provider.RateLimit.Burst = 0 }, "burst"},
		{"redis addr", func(c *Config) { c.Store.Backend = StoreRedis }, "store.redis.addr"},
		{"backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown backend"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "unknown exporter"},
		{"ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "sample_ratio"},
		{"assistant backend", func(c *Config) { c.Assistant.Backend = "azure" }, "assistant.backend"},
		{"assistant openai", func(c *Config) { c.Assistant.Backend = AssistantBackendOpenAI }, "provider.openai.api_key"},
		{"poll interval", func(c *Config) { c.Assistant.PollInterval = 0 }, "poll_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := Default()
	cfg.Conductor.DefaultMaxTurns = 0
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_max_turns")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoadAgents(t *testing.T) {
	path := writeFile(t, "agents.yaml", `
agents:
  - name: researcher
    model: gpt-4o-mini
    instructions: Find facts.
    tools: [add, exampleTool]
  - name: critic
    model: claude-3-5-haiku-latest
`)
	seeds, err := LoadAgents(path)
	require.NoError(t, err)
	assert.Equal(t, []AgentSeed{
		{Name: "researcher", Model: "gpt-4o-mini", Instructions: "Find facts.", Tools: []string{"add", "exampleTool"}},
		{Name: "critic", Model: "claude-3-5-haiku-latest"},
	}, seeds)
}

func TestParseAgents_Errors(t *testing.T) {
	_, err := ParseAgents([]byte("agents:\n  - name: a\n"))
	assert.ErrorContains(t, err, "model is required")

	_, err = ParseAgents([]byte("agents:\n  - name: a\n    model: m\n    tools: [x, x]\n"))
	assert.ErrorContains(t, err, "listed twice")

	_, err = ParseAgents([]byte("agents:\n  - name: a\n    model: m\n    color: red\n"))
	assert.Error(t, err, "unknown keys are rejected")

	seeds, err := ParseAgents(nil)
	require.NoError(t, err)
	assert.Empty(t, seeds)

	_, err = LoadAgents(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
