package batch

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestWriteAutoFlushesAtMaxSize(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 2, time.Hour)
	defer w.Close()

	w.WriteQuery(`INSERT INTO items (id, name) VALUES (?, ?)`, 1, "a")
	w.WriteQuery(`INSERT INTO items (id, name) VALUES (?, ?)`, 2, "b")

	// second write hit maxSize and triggered a synchronous flush
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after auto-flush, got %d", count)
	}
	if w.Pending() != 0 {
		t.Fatalf("expected empty buffer after auto-flush, got %d pending", w.Pending())
	}
}

func TestFlushIsNoOpOnEmptyBuffer(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 50, time.Hour)
	defer w.Close()

	if err := w.Flush(); err != nil {
		t.Fatalf("expected nil error flushing empty buffer, got %v", err)
	}
}

func TestCloseFlushesRemainingOperations(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 50, time.Hour)

	w.WriteQuery(`INSERT INTO items (id, name) VALUES (?, ?)`, 1, "a")
	if w.Pending() != 1 {
		t.Fatalf("expected 1 pending op before close, got %d", w.Pending())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected final flush to persist the row, got %d rows", count)
	}
}

func TestGetMetricsTracksWritesAndBatches(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 50, time.Hour)
	defer w.Close()

	w.WriteQuery(`INSERT INTO items (id, name) VALUES (?, ?)`, 1, "a")
	w.WriteQuery(`INSERT INTO items (id, name) VALUES (?, ?)`, 2, "b")
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	m := w.GetMetrics()
	if m.TotalWrites != 2 {
		t.Fatalf("expected 2 total writes, got %d", m.TotalWrites)
	}
	if m.TotalBatches != 1 {
		t.Fatalf("expected 1 batch, got %d", m.TotalBatches)
	}
	if m.LastBatchSize != 2 {
		t.Fatalf("expected last batch size 2, got %d", m.LastBatchSize)
	}
}

func TestFailingQueryRollsBackAndCountsError(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 50, time.Hour)
	defer w.Close()

	w.WriteQuery(`INSERT INTO items (id, name) VALUES (?, ?)`, 1, "a")
	w.WriteQuery(`INSERT INTO nonexistent_table (id) VALUES (?)`, 1)

	if err := w.Flush(); err == nil {
		t.Fatalf("expected error from failing batch")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the valid insert too, got %d rows", count)
	}

	if w.GetMetrics().TotalErrors != 1 {
		t.Fatalf("expected 1 tracked error, got %d", w.GetMetrics().TotalErrors)
	}
}
