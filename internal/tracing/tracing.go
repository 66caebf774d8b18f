// Package tracing wraps OpenTelemetry span creation around DAP request
// handling and execution-controller state transitions (SPEC_FULL.md §4.3,
// §4.5). Adapted from the teacher's pkg/tracing.InitTracing/WithSpan: the
// exporter selection, resource/sampler setup, and global-provider wiring
// carry over unchanged; the HTTP-specific attribute helpers are dropped
// since this server has no HTTP request surface to instrument.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider.
type Config struct {
	ServiceName  string
	Environment  string
	ExporterType string // "stdout" or "otlp"
	OTLPEndpoint string
	SamplingRate float64
	Enabled      bool
}

// DefaultConfig returns a development-friendly configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "glyph-dap",
		Environment:  "development",
		ExporterType: "stdout",
		SamplingRate: 1.0,
		Enabled:      false,
	}
}

// Provider wraps the OpenTelemetry tracer provider.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

// Init initializes tracing per cfg. When cfg.Enabled is false it installs a
// no-op provider so callers never need a nil check.
func Init(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{sdk: sdktrace.NewTracerProvider()}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.ExporterType {
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
		exporter, err = otlptrace.New(context.Background(), client)
	case "stdout", "":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter type %q", cfg.ExporterType)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &Provider{sdk: tp}, nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Tracer returns the named tracer for this service.
func Tracer() trace.Tracer {
	return otel.Tracer("glyph-dap")
}

// StartSpan starts a span under the current tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// WithSpan runs fn inside a span named name, recording fn's error (if any)
// on the span before returning it.
func WithSpan(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
