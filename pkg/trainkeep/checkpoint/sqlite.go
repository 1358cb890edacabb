package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteCatalog persists retention bookkeeping to SQLite.
// It is suitable for single-process production use.
type SQLiteCatalog struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog creates a new SQLite catalog.
// The path should be a file path (e.g., "./retention.db") or ":memory:" for testing.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS retention (
			namespace TEXT NOT NULL,
			path TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			metric REAL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (namespace, path)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create retention table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS saver_state (
			namespace TEXT PRIMARY KEY,
			best_epoch INTEGER NOT NULL DEFAULT 0,
			best_metric REAL,
			recovery_current TEXT NOT NULL DEFAULT '',
			recovery_previous TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

// PutRecord implements Catalog.
func (s *SQLiteCatalog) PutRecord(ns string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCatalogClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO retention (namespace, path, epoch, metric, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, path) DO UPDATE SET
			epoch = excluded.epoch,
			metric = excluded.metric,
			saved_at = excluded.saved_at
	`, ns, rec.Path, rec.Epoch, nullMetric(rec.Metric), rec.Saved.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// DeleteRecord implements Catalog.
func (s *SQLiteCatalog) DeleteRecord(ns, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCatalogClosed
	}

	_, err := s.db.Exec(`
		DELETE FROM retention
		WHERE namespace = ? AND path = ?
	`, ns, path)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Records implements Catalog.
func (s *SQLiteCatalog) Records(ns string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrCatalogClosed
	}

	rows, err := s.db.Query(`
		SELECT path, epoch, metric, saved_at
		FROM retention
		WHERE namespace = ?
		ORDER BY path
	`, ns)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var metric sql.NullFloat64
		var saved string
		if err := rows.Scan(&rec.Path, &rec.Epoch, &metric, &saved); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if metric.Valid {
			v := metric.Float64
			rec.Metric = &v
		}
		if rec.Saved, err = time.Parse(time.RFC3339Nano, saved); err != nil {
			return nil, fmt.Errorf("parse saved_at for %s: %w", rec.Path, err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// SetBest implements Catalog.
func (s *SQLiteCatalog) SetBest(ns string, best BestMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCatalogClosed
	}

	var metric sql.NullFloat64
	if best.Valid {
		metric = sql.NullFloat64{Float64: best.Metric, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO saver_state (namespace, best_epoch, best_metric)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
			best_epoch = excluded.best_epoch,
			best_metric = excluded.best_metric
	`, ns, best.Epoch, metric)
	if err != nil {
		return fmt.Errorf("set best: %w", err)
	}
	return nil
}

// Best implements Catalog.
func (s *SQLiteCatalog) Best(ns string) (BestMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return BestMetric{}, ErrCatalogClosed
	}

	var best BestMetric
	var metric sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT best_epoch, best_metric FROM saver_state
		WHERE namespace = ?
	`, ns).Scan(&best.Epoch, &metric)

	if errors.Is(err, sql.ErrNoRows) {
		return BestMetric{}, nil
	}
	if err != nil {
		return BestMetric{}, fmt.Errorf("load best: %w", err)
	}
	if !metric.Valid {
		return BestMetric{}, nil
	}
	best.Metric = metric.Float64
	best.Valid = true
	return best, nil
}

// SetRecovery implements Catalog.
func (s *SQLiteCatalog) SetRecovery(ns string, slot RecoverySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCatalogClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO saver_state (namespace, recovery_current, recovery_previous)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
			recovery_current = excluded.recovery_current,
			recovery_previous = excluded.recovery_previous
	`, ns, slot.Current, slot.Previous)
	if err != nil {
		return fmt.Errorf("set recovery: %w", err)
	}
	return nil
}

// Recovery implements Catalog.
func (s *SQLiteCatalog) Recovery(ns string) (RecoverySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return RecoverySlot{}, ErrCatalogClosed
	}

	var slot RecoverySlot
	err := s.db.QueryRow(`
		SELECT recovery_current, recovery_previous FROM saver_state
		WHERE namespace = ?
	`, ns).Scan(&slot.Current, &slot.Previous)

	if errors.Is(err, sql.ErrNoRows) {
		return RecoverySlot{}, nil
	}
	if err != nil {
		return RecoverySlot{}, fmt.Errorf("load recovery: %w", err)
	}
	return slot, nil
}

// Close implements Catalog.
func (s *SQLiteCatalog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// nullMetric maps an absent metric to SQL NULL.
func nullMetric(m *float64) sql.NullFloat64 {
	if m == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *m, Valid: true}
}
