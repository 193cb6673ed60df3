package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "agentconductor"

// Metrics holds the conductor's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	turnsTotal    *prometheus.CounterVec
	messagesTotal *prometheus.CounterVec

	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	tokensTotal          *prometheus.CounterVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg gets
// a fresh registry carrying the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Finished conversation runs by terminal status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Conversation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_runs",
			Help:      "Number of runs in progress",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Completed agent turns",
		}, []string{"agent"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Transcript messages produced by finished runs",
		}, []string{"role"}),
		providerCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "provider_calls_total",
			Help:      "Completion provider calls",
		}, []string{"model", "status"}),
		providerCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Completion provider latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by completion providers",
		}, []string{"model", "kind"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations",
		}, []string{"tool", "status"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.runsTotal,
		m.runDuration,
		m.activeRuns,
		m.turnsTotal,
		m.messagesTotal,
		m.providerCallsTotal,
		m.providerCallDuration,
		m.tokensTotal,
		m.toolCallsTotal,
		m.toolCallDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordProviderCall records one completion call.
func (m *Metrics) RecordProviderCall(model, status string, duration time.Duration) {
	m.providerCallsTotal.WithLabelValues(model, status).Inc()
	m.providerCallDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordTokens adds reported token usage.
func (m *Metrics) RecordTokens(model string, prompt, completion int) {
	if prompt > 0 {
		m.tokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.tokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(tool, status string, duration time.Duration) {
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
