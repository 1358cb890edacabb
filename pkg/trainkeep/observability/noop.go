package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordCheckpointSave does nothing.
func (NoopMetrics) RecordCheckpointSave(_ context.Context, _ string, _ int64, _ time.Duration) {}

// RecordEviction does nothing.
func (NoopMetrics) RecordEviction(_ context.Context, _ int) {}

// RecordCleanupFailure does nothing.
func (NoopMetrics) RecordCleanupFailure(_ context.Context, _ string) {}

// RecordRecoverySave does nothing.
func (NoopMetrics) RecordRecoverySave(_ context.Context, _ int64, _ time.Duration) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
var noopSpan = noop.Span{}

// StartSaveSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartSaveSpan(ctx context.Context, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
