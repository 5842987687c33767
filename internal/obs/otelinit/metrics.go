package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	otelattr "go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// CoreInstruments are the counters/histograms the core emits from the
// query planner, merge paths, and anti-entropy rounds.
type CoreInstruments struct {
	QueryPlanCost      metric.Float64Histogram
	MergeAppliedTotal  metric.Int64Counter
	SyncRoundsTotal    metric.Int64Counter
	IndexSuggestions   metric.Int64Counter
	RetryAttemptsTotal metric.Int64Counter
	CircuitOpenTotal   metric.Int64Counter
}

// InitMetrics configures a global OTLP push meter provider and returns
// its shutdown func alongside the core's named instruments.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, instruments CoreInstruments) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		otelattr.String("service", service),
	))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(initCtx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		slog.Warn("otel metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, buildInstruments()
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, buildInstruments()
}

func buildInstruments() CoreInstruments {
	meter := otel.Meter("meshstore")
	cost, _ := meter.Float64Histogram("meshstore_query_plan_cost")
	merged, _ := meter.Int64Counter("meshstore_merge_applied_total")
	rounds, _ := meter.Int64Counter("meshstore_sync_rounds_total")
	suggestions, _ := meter.Int64Counter("meshstore_index_suggestions_total")
	retries, _ := meter.Int64Counter("meshstore_resilience_retry_attempts_total")
	circuitOpen, _ := meter.Int64Counter("meshstore_resilience_circuit_open_total")
	return CoreInstruments{
		QueryPlanCost:      cost,
		MergeAppliedTotal:  merged,
		SyncRoundsTotal:    rounds,
		IndexSuggestions:   suggestions,
		RetryAttemptsTotal: retries,
		CircuitOpenTotal:   circuitOpen,
	}
}
