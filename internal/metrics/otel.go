package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope used for relay instruments.
const MeterName = "github.com/webmcp/relay"

// WithMeter creates the relay's instruments on meter and starts recording to
// them alongside the in-memory counters.
func (a *Aggregator) WithMeter(meter metric.Meter) error {
	calls, err := meter.Int64Counter("webmcp.tool.calls",
		metric.WithDescription("Completed tool calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return fmt.Errorf("WithMeter: %w", err)
	}

	latency, err := meter.Float64Histogram("webmcp.tool.latency",
		metric.WithDescription("Tool call latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000),
	)
	if err != nil {
		return fmt.Errorf("WithMeter: %w", err)
	}

	a.mu.Lock()
	a.otel = &instruments{calls: calls, latency: latency}
	a.mu.Unlock()
	return nil
}

// NewOTLPProvider builds a meter provider exporting over OTLP/gRPC. The
// exporter reads the standard OTEL_EXPORTER_OTLP_* variables for its endpoint.
func NewOTLPProvider(ctx context.Context, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}
