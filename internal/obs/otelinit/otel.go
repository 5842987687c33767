// Package otelinit wires the OpenTelemetry tracer/meter providers: OTLP
// gRPC exporters, a WithSpan helper, and a shutdown/flush path the host
// daemon runs on graceful exit.
package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InitTracer configures a global tracer provider backed by an OTLP gRPC
// exporter. Exporter failures are logged and degrade to a no-op
// shutdown rather than aborting startup.
func InitTracer(ctx context.Context, service string) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		slog.Warn("otel tracer exporter init failed", "error", err)
		return func(context.Context) error { return nil }
	}

	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("otel tracer initialized", "endpoint", endpoint)
	return tp.Shutdown
}

// WithSpan starts a span named name and returns the derived context and
// an end function to defer.
func WithSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, func()) {
	tr := otel.Tracer("meshstore")
	ctx, span := tr.Start(ctx, name, opts...)
	return ctx, func() { span.End() }
}

// Flush shuts down a provider with a bounded grace period.
func Flush(ctx context.Context, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Warn("otel shutdown error", "error", err)
	}
}
