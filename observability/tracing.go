package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is reported when TracingConfig.ServiceName is empty.
const DefaultServiceName = "agentconductor"

// Exporter kinds accepted by TracingConfig.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracingConfig selects the span exporter.
type TracingConfig struct {
	ServiceName string
	// Exporter is "none", "stdout" or "otlp". Empty means none.
	Exporter string
	// Endpoint is the OTLP/HTTP host:port.
	Endpoint string
	// Insecure disables TLS for the OTLP exporter.
	Insecure bool
	Headers  map[string]string
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
	// SampleRatio in (0,1] samples a fraction of traces. Zero samples all.
	SampleRatio float64
}

// Tracing owns the tracer provider created by InitTracing.
type Tracing struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
}

// Provider returns the tracer provider to hand to the conductor.
func (t *Tracing) Provider() trace.TracerProvider { return t.provider }

// Shutdown flushes pending spans. It is safe on a disabled Tracing.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.sdk == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return t.sdk.Shutdown(ctx)
}

// InitTracing builds a tracer provider for cfg and installs it globally.
// With the none exporter a no-op provider is returned and nothing is installed.
func InitTracing(ctx context.Context, cfg TracingConfig) (*Tracing, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "", ExporterNone:
		return &Tracing{provider: noop.NewTracerProvider()}, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		exporter, err = newOTLPExporter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, sdk: tp}, nil
}

func newOTLPExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
}
