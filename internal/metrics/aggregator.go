// Package metrics aggregates per-tool call counters and latency in memory and
// optionally mirrors them to OpenTelemetry instruments.
package metrics

import (
	"context"
	"sync"

	"github.com/webmcp/relay/internal/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Totals are the process-wide call counters.
type Totals struct {
	TotalCalls int64 `json:"totalCalls"`
	OKCalls    int64 `json:"okCalls"`
	ErrorCalls int64 `json:"errorCalls"`
}

// ToolStats are the per-tool counters and latency accumulators.
type ToolStats struct {
	TotalCalls     int64   `json:"totalCalls"`
	OKCalls        int64   `json:"okCalls"`
	ErrorCalls     int64   `json:"errorCalls"`
	TotalLatencyMs float64 `json:"totalLatencyMs"`
	MaxLatencyMs   float64 `json:"maxLatencyMs"`
}

// Snapshot is a point-in-time copy of the aggregator.
type Snapshot struct {
	Totals       Totals               `json:"totals"`
	Tools        map[string]ToolStats `json:"tools"`
	ErrorsByCode map[string]int64     `json:"errorsByCode"`
}

type instruments struct {
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu           sync.Mutex
	totals       Totals
	tools        map[string]*ToolStats
	errorsByCode map[string]int64
	otel         *instruments
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		tools:        make(map[string]*ToolStats),
		errorsByCode: make(map[string]int64),
	}
}

// Record counts one completed call. errorCode is only counted for error
// outcomes and may be empty.
func (a *Aggregator) Record(ctx context.Context, toolName string, outcome protocol.Outcome, latencyMs float64, errorCode string) {
	a.mu.Lock()
	a.totals.TotalCalls++
	t, ok := a.tools[toolName]
	if !ok {
		t = &ToolStats{}
		a.tools[toolName] = t
	}
	t.TotalCalls++
	if outcome == protocol.OutcomeOK {
		a.totals.OKCalls++
		t.OKCalls++
	} else {
		a.totals.ErrorCalls++
		t.ErrorCalls++
		if errorCode != "" {
			a.errorsByCode[errorCode]++
		}
	}
	t.TotalLatencyMs += latencyMs
	if latencyMs > t.MaxLatencyMs {
		t.MaxLatencyMs = latencyMs
	}
	inst := a.otel
	a.mu.Unlock()

	if inst != nil {
		attrs := metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("outcome", string(outcome)),
			attribute.String("error_code", errorCode),
		)
		inst.calls.Add(ctx, 1, attrs)
		inst.latency.Record(ctx, latencyMs, attrs)
	}
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Totals:       a.totals,
		Tools:        make(map[string]ToolStats, len(a.tools)),
		ErrorsByCode: make(map[string]int64, len(a.errorsByCode)),
	}
	for name, t := range a.tools {
		s.Tools[name] = *t
	}
	for code, n := range a.errorsByCode {
		s.ErrorsByCode[code] = n
	}
	return s
}

// Reset zeroes every counter. OpenTelemetry instruments are cumulative and
// are not affected.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals = Totals{}
	a.tools = make(map[string]*ToolStats)
	a.errorsByCode = make(map[string]int64)
}
