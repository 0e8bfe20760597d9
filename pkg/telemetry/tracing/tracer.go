package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Options configures trace export.
type Options struct {
	// Enabled turns span export on. When false, Setup returns a no-op
	// tracer.
	Enabled bool

	// Endpoint is the OTLP gRPC collector endpoint (host:port).
	Endpoint string

	// ServiceName identifies this process in traces. Default: ganymede.
	ServiceName string

	// SampleRatio is the fraction of traces sampled. Default: 1.0.
	SampleRatio float64
}

// Tracer wraps the configured tracer provider with its shutdown.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Setup configures OTLP trace export and registers the global provider.
func Setup(ctx context.Context, opts Options) (*Tracer, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "ganymede"
	}

	if !opts.Enabled {
		return &Tracer{tracer: otel.Tracer(opts.ServiceName)}, nil
	}

	if opts.SampleRatio <= 0 || opts.SampleRatio > 1 {
		opts.SampleRatio = 1.0
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(opts.ServiceName),
		provider: provider,
	}, nil
}

// StartRequest opens a span for one proxied request.
func (t *Tracer) StartRequest(ctx context.Context, provider, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "proxy.request",
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("path", path),
		),
	)
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.provider.Shutdown(ctx)
}
