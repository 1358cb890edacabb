package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	// Build a map from the record
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	// Add pre-configured attrs
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	// Add record attrs
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	// Encode as JSON
	enc := json.NewEncoder(h.buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
	return newH
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func (h *testHandler) getAllRecords() []map[string]any {
	var records []map[string]any
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for _, line := range lines {
		if len(line) > 0 {
			var m map[string]any
			if err := json.Unmarshal(line, &m); err == nil {
				records = append(records, m)
			}
		}
	}
	return records
}

func ptr(v float64) *float64 { return &v }

func TestEnrichLogger(t *testing.T) {
	t.Run("adds run_id", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "run-123")
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "run-123", record["run_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "run-123"))
	})
}

func TestLogCheckpointSaved(t *testing.T) {
	t.Run("logs path, epoch, metric and size at INFO", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogCheckpointSaved(logger, "/ckpt/checkpoint-3.json.lz4", 3, ptr(0.25), 2048)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "checkpoint saved", record["msg"])
		assert.Equal(t, "/ckpt/checkpoint-3.json.lz4", record["path"])
		assert.Equal(t, float64(3), record["epoch"])
		assert.Equal(t, 0.25, record["metric"])
		assert.Equal(t, float64(2048), record["size_bytes"])
	})

	t.Run("absent metric logs as none", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogCheckpointSaved(logger, "p", 1, nil, 1)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "none", record["metric"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogCheckpointSaved(nil, "p", 1, nil, 1)
		})
	})
}

func TestLogCheckpointRejected(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogCheckpointRejected(logger, 4, ptr(6.0), ptr(4.0))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "checkpoint not retained", record["msg"])
	assert.Equal(t, 6.0, record["metric"])
	assert.Equal(t, 4.0, record["worst_metric"])

	assert.NotPanics(t, func() {
		LogCheckpointRejected(nil, 1, nil, nil)
	})
}

func TestLogBestUpdated(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogBestUpdated(logger, "best", 2, 3.0)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "best checkpoint updated", record["msg"])
	assert.Equal(t, float64(2), record["epoch"])
	assert.Equal(t, 3.0, record["metric"])
}

func TestLogRetentionSet(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogRetentionSet(logger, []string{"a", "b"})

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "current checkpoints", record["msg"])
	assert.Equal(t, []any{"a", "b"}, record["paths"])
}

func TestLogEvictionAndRecovery(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogEviction(logger, "/ckpt/checkpoint-1.json.lz4", ptr(5.0))
	LogRecoverySaved(logger, "/rec/recovery-1-20.json.lz4", 1, 20)

	records := h.getAllRecords()
	require.Len(t, records, 2)

	assert.Equal(t, "cleaning checkpoint", records[0]["msg"])
	assert.Equal(t, 5.0, records[0]["metric"])

	assert.Equal(t, "recovery saved", records[1]["msg"])
	assert.Equal(t, float64(20), records[1]["batch_index"])
}

func TestLogCleanupError(t *testing.T) {
	t.Run("logs at WARN level with path and error", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogCleanupError(logger, "recovery", "/rec/old.json.lz4", errors.New("permission denied"))

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, "cleanup failed", record["msg"])
		assert.Equal(t, "recovery", record["kind"])
		assert.Equal(t, "/rec/old.json.lz4", record["path"])
		assert.Equal(t, "permission denied", record["error"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogCleanupError(nil, "checkpoint", "p", errors.New("err"))
			LogCatalogError(nil, "put", errors.New("err"))
		})
	})
}

func TestLogCatalogError(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogCatalogError(logger, "put_record", errors.New("database is locked"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "put_record", record["operation"])
	assert.Equal(t, "database is locked", record["error"])
}
