// Package logging provides a minimal logging interface and adapters for agentconductor.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the conductor, registries, providers and the HTTP server use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - ConductorLogger with run/component context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	c := agentconductor.New(func(o *agentconductor.Options) { o.Logger = logger })
//
// The interface is intentionally minimal so any structured logger can be
// plugged in.
package logging
