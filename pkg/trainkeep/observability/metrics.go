package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Save outcomes reported to RecordCheckpointSave.
const (
	OutcomeSaved    = "saved"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Cleanup kinds reported to RecordCleanupFailure.
const (
	CleanupCheckpoint = "checkpoint"
	CleanupRecovery   = "recovery"
)

// MetricsRecorder records checkpoint bookkeeping metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordCheckpointSave records a save attempt with its outcome.
	// sizeBytes and duration are ignored unless outcome is OutcomeSaved.
	RecordCheckpointSave(ctx context.Context, outcome string, sizeBytes int64, duration time.Duration)

	// RecordEviction records checkpoints dropped from the retention set.
	RecordEviction(ctx context.Context, count int)

	// RecordCleanupFailure records a failed removal of a superseded file.
	RecordCleanupFailure(ctx context.Context, kind string)

	// RecordRecoverySave records a recovery snapshot write.
	RecordRecoverySave(ctx context.Context, sizeBytes int64, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	saves           metric.Int64Counter
	checkpointSize  metric.Int64Histogram
	writeLatency    metric.Float64Histogram
	evictions       metric.Int64Counter
	cleanupFailures metric.Int64Counter
	recoverySaves   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("trainkeep")

	saves, err := meter.Int64Counter("trainkeep.checkpoint.saves",
		metric.WithDescription("Number of checkpoint save attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("trainkeep.checkpoint.size_bytes",
		metric.WithDescription("Written file size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	writeLatency, err := meter.Float64Histogram("trainkeep.checkpoint.write_latency_ms",
		metric.WithDescription("File write latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("trainkeep.checkpoint.evictions",
		metric.WithDescription("Number of checkpoints evicted from the retention set"),
	)
	if err != nil {
		return nil, err
	}

	cleanupFailures, err := meter.Int64Counter("trainkeep.cleanup.failures",
		metric.WithDescription("Number of failed removals of superseded files"),
	)
	if err != nil {
		return nil, err
	}

	recoverySaves, err := meter.Int64Counter("trainkeep.recovery.saves",
		metric.WithDescription("Number of recovery snapshots written"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		saves:           saves,
		checkpointSize:  checkpointSize,
		writeLatency:    writeLatency,
		evictions:       evictions,
		cleanupFailures: cleanupFailures,
		recoverySaves:   recoverySaves,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordCheckpointSave records a checkpoint save attempt.
func (m *otelMetrics) RecordCheckpointSave(ctx context.Context, outcome string, sizeBytes int64, duration time.Duration) {
	kind := attribute.String("kind", "checkpoint")
	m.saves.Add(ctx, 1, metric.WithAttributes(kind, attribute.String("outcome", outcome)))

	if outcome != OutcomeSaved {
		return
	}
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(kind))
	m.writeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(kind))
}

// RecordEviction records evicted checkpoints.
func (m *otelMetrics) RecordEviction(ctx context.Context, count int) {
	m.evictions.Add(ctx, int64(count))
}

// RecordCleanupFailure records a failed removal.
func (m *otelMetrics) RecordCleanupFailure(ctx context.Context, kind string) {
	m.cleanupFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRecoverySave records a recovery snapshot write.
func (m *otelMetrics) RecordRecoverySave(ctx context.Context, sizeBytes int64, duration time.Duration) {
	kind := attribute.String("kind", "recovery")
	m.recoverySaves.Add(ctx, 1)
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(kind))
	m.writeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(kind))
}
