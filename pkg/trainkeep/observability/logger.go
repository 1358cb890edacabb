// Package observability provides logging, metrics, and tracing helpers
// for trainkeep's checkpoint bookkeeping.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
)

// EnrichLogger adds run context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123")
//	enriched.Info("saving") // includes run_id
func EnrichLogger(logger *slog.Logger, runID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("run_id", runID))
}

// metricAttr renders an optional metric. Absent metrics log as "none".
func metricAttr(key string, metric *float64) slog.Attr {
	if metric == nil {
		return slog.String(key, "none")
	}
	return slog.Float64(key, *metric)
}

// LogCheckpointSaved logs a retained checkpoint write.
func LogCheckpointSaved(logger *slog.Logger, path string, epoch int, metric *float64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint saved",
		slog.String("path", path),
		slog.Int("epoch", epoch),
		metricAttr("metric", metric),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointRejected logs a save that did not beat the worst retained metric.
func LogCheckpointRejected(logger *slog.Logger, epoch int, metric, worst *float64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint not retained",
		slog.Int("epoch", epoch),
		metricAttr("metric", metric),
		metricAttr("worst_metric", worst),
	)
}

// LogBestUpdated logs a new best metric.
func LogBestUpdated(logger *slog.Logger, path string, epoch int, metric float64) {
	if logger == nil {
		return
	}
	logger.Info("best checkpoint updated",
		slog.String("path", path),
		slog.Int("epoch", epoch),
		slog.Float64("metric", metric),
	)
}

// LogRetentionSet logs the retained checkpoints, best first.
func LogRetentionSet(logger *slog.Logger, paths []string) {
	if logger == nil {
		return
	}
	logger.Debug("current checkpoints",
		slog.Any("paths", paths),
	)
}

// LogEviction logs a checkpoint leaving the retention set.
func LogEviction(logger *slog.Logger, path string, metric *float64) {
	if logger == nil {
		return
	}
	logger.Info("cleaning checkpoint",
		slog.String("path", path),
		metricAttr("metric", metric),
	)
}

// LogRecoverySaved logs a recovery snapshot write.
func LogRecoverySaved(logger *slog.Logger, path string, epoch, batchIndex int) {
	if logger == nil {
		return
	}
	logger.Debug("recovery saved",
		slog.String("path", path),
		slog.Int("epoch", epoch),
		slog.Int("batch_index", batchIndex),
	)
}

// LogCleanupError logs a failed removal of a superseded file (non-fatal).
func LogCleanupError(logger *slog.Logger, kind, path string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("cleanup failed",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// LogCatalogError logs a failed catalog update (non-fatal).
func LogCatalogError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("catalog update failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
