// Package checkpoint keeps a bounded, metric-ordered set of training
// checkpoints on disk, a copy of the best one, and a rolling pair of
// recovery snapshots for resuming after a crash.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/observability"
)

// Saver owns the checkpoint and recovery directories of one training run.
//
// Lower metrics are better. The retention set never holds more than
// MaxHistory records and is kept sorted ascending by metric, so its tail
// is always the worst retained checkpoint.
//
// A Saver is not safe for concurrent use; call it from the training loop.
type Saver struct {
	cfg       Config
	namespace string

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	store   FileStore
	catalog Catalog
	runID   string
	now     func() time.Time

	records  []Record
	best     BestMetric
	recovery RecoverySlot
}

// NewSaver validates cfg and restores any bookkeeping the catalog holds
// for cfg's checkpoint directory and prefix.
//
// Restored records whose files are gone are dropped. If MaxHistory shrank
// since the catalog was written, the worst surplus checkpoints are evicted.
func NewSaver(cfg Config, opts ...Option) (*Saver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sc := defaultSaverConfig()
	for _, opt := range opts {
		opt(&sc)
	}
	if sc.runID == "" {
		sc.runID = uuid.New().String()
	}

	s := &Saver{
		cfg:       cfg,
		namespace: filepath.Join(cfg.CheckpointDir, cfg.CheckpointPrefix),
		logger:    observability.EnrichLogger(sc.logger, sc.runID),
		metrics:   sc.metrics,
		spans:     sc.spans,
		store:     sc.store,
		catalog:   sc.catalog,
		runID:     sc.runID,
		now:       sc.now,
	}

	if err := s.restore(); err != nil {
		return nil, err
	}
	return s, nil
}

// restore loads catalog state into memory.
func (s *Saver) restore() error {
	recs, err := s.catalog.Records(s.namespace)
	if err != nil {
		return fmt.Errorf("restore retention set: %w", err)
	}
	for _, rec := range recs {
		ok, err := s.store.Exists(rec.Path)
		if err != nil {
			return fmt.Errorf("restore retention set: %w", err)
		}
		if !ok {
			s.logger.Debug("dropping catalog record without file", slog.String("path", rec.Path))
			s.catalogDo("delete_record", s.catalog.DeleteRecord(s.namespace, rec.Path))
			continue
		}
		s.records = append(s.records, rec)
	}
	sortRecords(s.records)

	if s.best, err = s.catalog.Best(s.namespace); err != nil {
		return fmt.Errorf("restore best metric: %w", err)
	}
	if s.recovery, err = s.catalog.Recovery(s.namespace); err != nil {
		return fmt.Errorf("restore recovery slot: %w", err)
	}

	s.evict(context.Background(), 0)
	return nil
}

// SaveCheckpoint persists state for epoch if it earns a place in the
// retention set, and returns the best metric seen so far.
//
// A save is admitted while the set has room, or when metric is strictly
// lower than the worst retained metric; admitting into a full set evicts
// the worst record first. A nil metric is never admitted into a full set.
// A rejected save writes nothing and changes nothing.
//
// When metric beats the best so far, the written file is also copied to
// model_best in the checkpoint directory.
//
// Re-saving a retained epoch replaces its record without evicting another.
//
// Serialize and write failures are returned as *CheckpointError and leave
// the retention set as it was before the call. Failures removing evicted
// files are only logged.
func (s *Saver) SaveCheckpoint(ctx context.Context, state State, epoch int, metric *float64) (_ BestMetric, err error) {
	if epoch < 0 {
		return s.best, fmt.Errorf("%w: epoch %d", ErrInvalidEpoch, epoch)
	}

	ctx, span := s.spans.StartSaveSpan(ctx, string(KindCheckpoint), epoch)
	defer func() { s.spans.EndSpanWithError(span, err) }()

	if !s.admits(metric) {
		observability.LogCheckpointRejected(s.logger, epoch, metric, s.worst().Metric)
		s.metrics.RecordCheckpointSave(ctx, observability.OutcomeRejected, 0, 0)
		return s.best, nil
	}

	path := s.checkpointPath(epoch)
	start := s.now()

	// Encode before evicting so a failed save leaves the set untouched.
	var data []byte
	cp, err := s.envelope(KindCheckpoint, state, epoch, metric)
	if err == nil {
		data, err = cp.Marshal()
	}
	if err != nil {
		s.metrics.RecordCheckpointSave(ctx, observability.OutcomeFailed, 0, 0)
		return s.best, &CheckpointError{Op: "serialize", Path: path, Err: err}
	}

	// Re-saving a retained epoch replaces its record and needs no free slot.
	if len(s.records) >= s.cfg.MaxHistory && !s.retains(path) {
		s.evict(ctx, 1)
	}

	if err := s.store.Write(path, data); err != nil {
		s.metrics.RecordCheckpointSave(ctx, observability.OutcomeFailed, 0, 0)
		return s.best, &CheckpointError{Op: "save", Path: path, Err: err}
	}
	size := len(data)
	s.metrics.RecordCheckpointSave(ctx, observability.OutcomeSaved, int64(size), s.now().Sub(start))

	s.insert(Record{Path: path, Epoch: epoch, Metric: cloneMetric(metric), Saved: cp.Timestamp})
	observability.LogCheckpointSaved(s.logger, path, epoch, metric, size)
	observability.LogRetentionSet(s.logger, s.paths())

	if metric != nil && (!s.best.Valid || *metric < s.best.Metric) {
		bestPath := s.BestPath()
		if err := s.store.Copy(path, bestPath); err != nil {
			return s.best, &CheckpointError{Op: "copy_best", Path: bestPath, Err: err}
		}
		s.best = BestMetric{Epoch: epoch, Metric: *metric, Valid: true}
		s.catalogDo("set_best", s.catalog.SetBest(s.namespace, s.best))
		observability.LogBestUpdated(s.logger, bestPath, epoch, *metric)
		s.spans.AddSpanEvent(ctx, "checkpoint.best_updated", attribute.Float64("metric", *metric))
	}

	return s.best, nil
}

// admits applies the retention admission rule.
func (s *Saver) admits(metric *float64) bool {
	if len(s.records) < s.cfg.MaxHistory {
		return true
	}
	if metric == nil {
		return false
	}
	worst := s.worst()
	return worst.Metric == nil || *metric < *worst.Metric
}

// worst returns the tail of the retention set. Callers ensure it is non-empty.
func (s *Saver) worst() Record {
	return s.records[len(s.records)-1]
}

// evict drops the worst records so at most MaxHistory-trim remain.
// trim is clamped to the set size; trim 0 only enforces MaxHistory.
// Removal failures are logged and counted, never returned.
func (s *Saver) evict(ctx context.Context, trim int) {
	trim = min(len(s.records), trim)
	deleteIndex := s.cfg.MaxHistory - trim
	if deleteIndex < 0 || len(s.records) <= deleteIndex {
		return
	}

	for _, rec := range s.records[deleteIndex:] {
		observability.LogEviction(s.logger, rec.Path, rec.Metric)
		s.spans.AddSpanEvent(ctx, "checkpoint.evicted", attribute.String("path", rec.Path))
		if err := s.store.Remove(rec.Path); err != nil {
			observability.LogCleanupError(s.logger, observability.CleanupCheckpoint, rec.Path, err)
			s.metrics.RecordCleanupFailure(ctx, observability.CleanupCheckpoint)
		}
		s.catalogDo("delete_record", s.catalog.DeleteRecord(s.namespace, rec.Path))
	}

	s.metrics.RecordEviction(ctx, len(s.records)-deleteIndex)
	s.records = slices.Clip(s.records[:deleteIndex])
}

// retains reports whether path is in the retention set.
func (s *Saver) retains(path string) bool {
	return slices.ContainsFunc(s.records, func(r Record) bool {
		return r.Path == path
	})
}

// insert adds rec, replacing any record for the same path, and re-sorts.
func (s *Saver) insert(rec Record) {
	s.records = slices.DeleteFunc(s.records, func(r Record) bool {
		return r.Path == rec.Path
	})
	s.records = append(s.records, rec)
	sortRecords(s.records)
	s.catalogDo("put_record", s.catalog.PutRecord(s.namespace, rec))
}

// SaveRecovery writes a recovery snapshot for (epoch, batchIndex) and
// returns its path.
//
// The snapshot from two saves ago is removed first, so at most the two
// most recent snapshots stay on disk. Removal failures are only logged.
func (s *Saver) SaveRecovery(ctx context.Context, state State, epoch, batchIndex int) (_ string, err error) {
	if epoch < 0 || batchIndex < 0 {
		return "", fmt.Errorf("%w: epoch %d, batch %d", ErrInvalidEpoch, epoch, batchIndex)
	}

	ctx, span := s.spans.StartSaveSpan(ctx, string(KindRecovery), epoch)
	defer func() { s.spans.EndSpanWithError(span, err) }()

	path := s.recoveryPath(epoch, batchIndex)
	start := s.now()

	var data []byte
	cp, err := s.envelope(KindRecovery, state, epoch, nil)
	if err == nil {
		data, err = cp.WithBatch(batchIndex).Marshal()
	}
	if err != nil {
		return "", &CheckpointError{Op: "serialize", Path: path, Err: err}
	}

	if prev := s.recovery.Previous; prev != "" && prev != s.recovery.Current {
		s.removeRecovery(ctx, prev)
	}

	if err := s.store.Write(path, data); err != nil {
		return "", &CheckpointError{Op: "save_recovery", Path: path, Err: err}
	}
	size := len(data)
	s.metrics.RecordRecoverySave(ctx, int64(size), s.now().Sub(start))
	observability.LogRecoverySaved(s.logger, path, epoch, batchIndex)

	s.recovery = RecoverySlot{Current: path, Previous: s.recovery.Current}
	s.catalogDo("set_recovery", s.catalog.SetRecovery(s.namespace, s.recovery))
	return path, nil
}

// removeRecovery deletes a superseded recovery file if it is still on disk.
func (s *Saver) removeRecovery(ctx context.Context, path string) {
	ok, err := s.store.Exists(path)
	if err == nil && !ok {
		return
	}
	if err == nil {
		s.logger.Debug("cleaning recovery", slog.String("path", path))
		err = s.store.Remove(path)
	}
	if err != nil {
		observability.LogCleanupError(s.logger, observability.CleanupRecovery, path, err)
		s.metrics.RecordCleanupFailure(ctx, observability.CleanupRecovery)
	}
}

// FindRecovery returns the recovery file a resumed run should load,
// or "" if the recovery directory holds none. See the package-level FindRecovery.
func (s *Saver) FindRecovery() (string, error) {
	return FindRecovery(s.store, s.cfg.RecoveryDir, s.cfg.RecoveryPrefix)
}

// Checkpoints returns a copy of the retention set, best first.
func (s *Saver) Checkpoints() []Record {
	out := make([]Record, len(s.records))
	for i, rec := range s.records {
		rec.Metric = cloneMetric(rec.Metric)
		out[i] = rec
	}
	return out
}

// Best returns the best metric seen so far.
func (s *Saver) Best() BestMetric {
	return s.best
}

// Recovery returns the current recovery slot.
func (s *Saver) Recovery() RecoverySlot {
	return s.recovery
}

// RunID returns the run ID stamped into envelopes.
func (s *Saver) RunID() string {
	return s.runID
}

// BestPath returns the path of the best checkpoint copy.
func (s *Saver) BestPath() string {
	return filepath.Join(s.cfg.CheckpointDir, BestName+Extension)
}

func (s *Saver) checkpointPath(epoch int) string {
	name := s.cfg.CheckpointPrefix + "-" + strconv.Itoa(epoch) + Extension
	return filepath.Join(s.cfg.CheckpointDir, name)
}

func (s *Saver) recoveryPath(epoch, batchIndex int) string {
	name := s.cfg.RecoveryPrefix + "-" + strconv.Itoa(epoch) + "-" + strconv.Itoa(batchIndex) + Extension
	return filepath.Join(s.cfg.RecoveryDir, name)
}

// envelope builds the on-disk checkpoint for state.
func (s *Saver) envelope(kind Kind, state State, epoch int, metric *float64) (*Checkpoint, error) {
	raw, err := encodeState(state, metric)
	if err != nil {
		return nil, err
	}

	cp := New(s.runID, kind, epoch, raw)
	cp.Timestamp = s.now().UTC()
	if metric != nil {
		cp.WithMetric(*metric)
	}
	return cp, nil
}

func (s *Saver) paths() []string {
	out := make([]string, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Path
	}
	return out
}

// catalogDo logs a failed catalog update. Files on disk stay authoritative.
func (s *Saver) catalogDo(op string, err error) {
	if err != nil {
		observability.LogCatalogError(s.logger, op, err)
	}
}

func cloneMetric(m *float64) *float64 {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
