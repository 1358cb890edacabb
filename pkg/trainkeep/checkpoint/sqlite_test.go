package checkpoint_test

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteCatalog_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "retention.db")

	// First catalog instance
	catalog1, err := checkpoint.NewSQLiteCatalog(dbPath)
	require.NoError(t, err)

	require.NoError(t, catalog1.PutRecord("ns", checkpoint.Record{Path: "ckpt-1", Epoch: 1, Metric: ptr(0.3)}))
	require.NoError(t, catalog1.SetBest("ns", checkpoint.BestMetric{Epoch: 1, Metric: 0.3, Valid: true}))
	require.NoError(t, catalog1.Close())

	// Second catalog instance (reopening the database)
	catalog2, err := checkpoint.NewSQLiteCatalog(dbPath)
	require.NoError(t, err)
	defer catalog2.Close()

	recs, err := catalog2.Records("ns")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ckpt-1", recs[0].Path)

	best, err := catalog2.Best("ns")
	require.NoError(t, err)
	assert.Equal(t, 0.3, best.Metric)
}

func TestSQLiteCatalog_CorruptSavedAt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "retention.db")

	catalog, err := checkpoint.NewSQLiteCatalog(dbPath)
	require.NoError(t, err)
	require.NoError(t, catalog.PutRecord("ns", checkpoint.Record{Path: "ckpt-1", Epoch: 1}))
	require.NoError(t, catalog.Close())

	// Damage the row behind the catalog's back
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE retention SET saved_at = 'yesterday' WHERE path = 'ckpt-1'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	catalog, err = checkpoint.NewSQLiteCatalog(dbPath)
	require.NoError(t, err)
	defer catalog.Close()

	_, err = catalog.Records("ns")
	assert.ErrorContains(t, err, "parse saved_at for ckpt-1")
}

func TestSQLiteCatalog_InvalidPath(t *testing.T) {
	_, err := checkpoint.NewSQLiteCatalog("/nonexistent/path/retention.db")
	assert.Error(t, err)
}

func TestSQLiteCatalog_CloseIdempotent(t *testing.T) {
	catalog, err := checkpoint.NewSQLiteCatalog(":memory:")
	require.NoError(t, err)

	assert.NoError(t, catalog.Close())
	assert.NoError(t, catalog.Close())
}

func TestSQLiteCatalog_Concurrent(t *testing.T) {
	catalog, err := checkpoint.NewSQLiteCatalog(":memory:")
	require.NoError(t, err)
	defer catalog.Close()

	const numGoroutines = 20
	const numOps = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			ns := "ns-" + strconv.Itoa(id%4)
			for j := 0; j < numOps; j++ {
				path := "ckpt-" + strconv.Itoa(j%5)
				switch j % 4 {
				case 0, 1:
					_ = catalog.PutRecord(ns, checkpoint.Record{Path: path, Epoch: j})
				case 2:
					_, _ = catalog.Records(ns)
				case 3:
					_ = catalog.SetRecovery(ns, checkpoint.RecoverySlot{Current: path})
				}
			}
		}(i)
	}

	wg.Wait()

	recs, err := catalog.Records("ns-0")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(recs), 5)
}
