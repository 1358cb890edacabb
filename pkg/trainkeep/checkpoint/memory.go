package checkpoint

import (
	"sort"
	"sync"
)

// MemoryCatalog is an in-memory catalog.
// Data is lost when the process exits; it is the Saver's default.
type MemoryCatalog struct {
	mu         sync.RWMutex
	namespaces map[string]*memoryNamespace
	closed     bool
}

// memoryNamespace holds one Saver's bookkeeping.
type memoryNamespace struct {
	records  map[string]Record // path -> record
	best     BestMetric
	recovery RecoverySlot
}

// Compile-time interface check.
var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates a new in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		namespaces: make(map[string]*memoryNamespace),
	}
}

// namespace returns the entry for ns, creating it. Caller holds the write lock.
func (m *MemoryCatalog) namespace(ns string) *memoryNamespace {
	n, ok := m.namespaces[ns]
	if !ok {
		n = &memoryNamespace{records: make(map[string]Record)}
		m.namespaces[ns] = n
	}
	return n
}

// PutRecord implements Catalog.
func (m *MemoryCatalog) PutRecord(ns string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCatalogClosed
	}

	// Copy the metric to avoid retaining the caller's pointer
	if rec.Metric != nil {
		v := *rec.Metric
		rec.Metric = &v
	}
	m.namespace(ns).records[rec.Path] = rec
	return nil
}

// DeleteRecord implements Catalog.
func (m *MemoryCatalog) DeleteRecord(ns, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCatalogClosed
	}

	if n, ok := m.namespaces[ns]; ok {
		delete(n.records, path)
	}
	return nil
}

// Records implements Catalog.
func (m *MemoryCatalog) Records(ns string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrCatalogClosed
	}

	n, ok := m.namespaces[ns]
	if !ok {
		return nil, nil
	}

	recs := make([]Record, 0, len(n.records))
	for _, rec := range n.records {
		if rec.Metric != nil {
			v := *rec.Metric
			rec.Metric = &v
		}
		recs = append(recs, rec)
	}

	// Sort by path so callers see a stable order
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Path < recs[j].Path
	})
	return recs, nil
}

// SetBest implements Catalog.
func (m *MemoryCatalog) SetBest(ns string, best BestMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCatalogClosed
	}

	m.namespace(ns).best = best
	return nil
}

// Best implements Catalog.
func (m *MemoryCatalog) Best(ns string) (BestMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return BestMetric{}, ErrCatalogClosed
	}

	if n, ok := m.namespaces[ns]; ok {
		return n.best, nil
	}
	return BestMetric{}, nil
}

// SetRecovery implements Catalog.
func (m *MemoryCatalog) SetRecovery(ns string, slot RecoverySlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCatalogClosed
	}

	m.namespace(ns).recovery = slot
	return nil
}

// Recovery implements Catalog.
func (m *MemoryCatalog) Recovery(ns string) (RecoverySlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return RecoverySlot{}, ErrCatalogClosed
	}

	if n, ok := m.namespaces[ns]; ok {
		return n.recovery, nil
	}
	return RecoverySlot{}, nil
}

// Close implements Catalog.
func (m *MemoryCatalog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.namespaces = nil
	return nil
}

// Len returns the total number of records across all namespaces.
// Useful for testing.
func (m *MemoryCatalog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.namespaces {
		count += len(n.records)
	}
	return count
}
