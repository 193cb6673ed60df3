// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into the conductor.
//
// Metrics are registered on an injected registry rather than the global
// default so several instances (and tests) can coexist. Runs feed them through
// conductor callbacks, provider calls through the Instrument middleware and
// HTTP traffic through RecordHTTPRequest.
package observability
