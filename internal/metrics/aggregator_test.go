package metrics

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webmcp/relay/internal/protocol"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestAggregator_Record(t *testing.T) {
	ctx := context.Background()
	a := NewAggregator()

	a.Record(ctx, "sum", protocol.OutcomeOK, 2, "")
	a.Record(ctx, "sum", protocol.OutcomeError, 5, protocol.CodeInvalidArguments)
	a.Record(ctx, "append_note", protocol.OutcomeError, 1, protocol.CodeConfirmationRequired)
	a.Record(ctx, "echo", protocol.OutcomeError, 1, "")

	s := a.Snapshot()
	assert.Equal(t, Totals{TotalCalls: 4, OKCalls: 1, ErrorCalls: 3}, s.Totals)
	assert.Equal(t, ToolStats{TotalCalls: 2, OKCalls: 1, ErrorCalls: 1, TotalLatencyMs: 7, MaxLatencyMs: 5}, s.Tools["sum"])
	assert.Equal(t, map[string]int64{
		protocol.CodeInvalidArguments:     1,
		protocol.CodeConfirmationRequired: 1,
	}, s.ErrorsByCode, "errors without a code are not bucketed")
}

func TestAggregator_SnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	a := NewAggregator()
	a.Record(ctx, "sum", protocol.OutcomeError, 1, "X")

	s := a.Snapshot()
	s.Tools["sum"] = ToolStats{}
	s.ErrorsByCode["X"] = 99

	again := a.Snapshot()
	assert.Equal(t, int64(1), again.Tools["sum"].TotalCalls)
	assert.Equal(t, int64(1), again.ErrorsByCode["X"])
}

func TestAggregator_Reset(t *testing.T) {
	a := NewAggregator()
	a.Record(context.Background(), "sum", protocol.OutcomeError, 1, "X")
	a.Reset()

	s := a.Snapshot()
	assert.Equal(t, Totals{}, s.Totals)
	assert.Empty(t, s.Tools)
	assert.Empty(t, s.ErrorsByCode)
}

func TestAggregator_Concurrent(t *testing.T) {
	ctx := context.Background()
	a := NewAggregator()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Record(ctx, "sum", protocol.OutcomeOK, 1, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), a.Snapshot().Totals.TotalCalls)
}

func TestAggregator_WithMeter(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	a := NewAggregator()
	require.NoError(t, a.WithMeter(provider.Meter(MeterName)))

	a.Record(ctx, "sum", protocol.OutcomeOK, 3, "")
	a.Record(ctx, "sum", protocol.OutcomeError, 4, protocol.CodeInvalidArguments)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	calls, ok := byName["webmcp.tool.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "calls should be an int64 sum")
	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	latency, ok := byName["webmcp.tool.latency"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "latency should be a float64 histogram")
	var count uint64
	for _, dp := range latency.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}
