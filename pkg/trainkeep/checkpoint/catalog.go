package checkpoint

import (
	"cmp"
	"slices"
	"time"
)

// Record is one retained checkpoint file and the metric it was saved under.
type Record struct {
	Path   string
	Epoch  int
	Metric *float64
	Saved  time.Time
}

// BestMetric is the lowest metric observed over a Saver's lifetime.
// The zero value means no metric has been recorded.
type BestMetric struct {
	Epoch  int
	Metric float64
	Valid  bool
}

// RecoverySlot holds the two most recent recovery snapshots.
// Empty strings mean the slot is unset.
type RecoverySlot struct {
	Current  string
	Previous string
}

// Catalog mirrors the Saver's retention bookkeeping so a restarted process
// can pick up where the previous one stopped.
// Entries are grouped by namespace; one Saver owns one namespace.
// Implementations must be safe for concurrent use.
type Catalog interface {
	// PutRecord stores a retained checkpoint.
	// Overwrites if a record with the same path already exists.
	PutRecord(namespace string, rec Record) error

	// DeleteRecord removes the record for path.
	// Returns nil if it doesn't exist.
	DeleteRecord(namespace, path string) error

	// Records returns all records in a namespace, in no particular order.
	// Returns empty slice (not error) if the namespace is unknown.
	Records(namespace string) ([]Record, error)

	// SetBest stores the best metric.
	SetBest(namespace string, best BestMetric) error

	// Best returns the stored best metric, or the zero value if none.
	Best(namespace string) (BestMetric, error)

	// SetRecovery stores the recovery slot.
	SetRecovery(namespace string, slot RecoverySlot) error

	// Recovery returns the stored recovery slot, or the zero value if none.
	Recovery(namespace string) (RecoverySlot, error)

	// Close releases any resources (connections, files).
	Close() error
}

// compareRecords orders records ascending by metric.
// Records without a metric rank after every record that has one.
func compareRecords(a, b Record) int {
	switch {
	case a.Metric == nil && b.Metric == nil:
		return 0
	case a.Metric == nil:
		return 1
	case b.Metric == nil:
		return -1
	}
	return cmp.Compare(*a.Metric, *b.Metric)
}

// sortRecords sorts in place; ties keep insertion order.
func sortRecords(recs []Record) {
	slices.SortStableFunc(recs, compareRecords)
}
