// Package batch batches SQL writes so a finished simulation run's
// thousands of order/trade records persist in a handful of
// transactions instead of one per row. Grounded on the teacher's
// internal/persistence/batch_writer.go.
package batch

import (
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// WriteOp is one buffered database write.
type WriteOp struct {
	Query string
	Args  []any
}

// Writer batches database writes for improved throughput when
// persisting a run's records.
type Writer struct {
	db          *sql.DB
	buffer      []WriteOp
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	metrics     Metrics
}

// Metrics reports batching statistics.
type Metrics struct {
	TotalWrites   uint64
	TotalBatches  uint64
	TotalErrors   uint64
	LastBatchSize int
	LastFlushTime time.Time
}

// NewWriter creates a batch writer. maxSize is the buffered-operation
// count that triggers an auto-flush; interval is the background
// time-based flush period.
func NewWriter(db *sql.DB, maxSize int, interval time.Duration) *Writer {
	if maxSize <= 0 {
		maxSize = 200
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	w := &Writer{
		db:          db,
		buffer:      make([]WriteOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.backgroundFlush()

	return w
}

// Write adds a write operation to the batch, flushing immediately if
// the buffer is now at capacity.
func (w *Writer) Write(op WriteOp) {
	w.mu.Lock()
	w.buffer = append(w.buffer, op)
	shouldFlush := len(w.buffer) >= w.maxSize
	w.mu.Unlock()

	if shouldFlush {
		w.Flush()
	}
}

// WriteQuery is a convenience wrapper for a single parameterized query.
func (w *Writer) WriteQuery(query string, args ...any) {
	w.Write(WriteOp{Query: query, Args: args})
}

// Flush immediately writes all buffered operations in one transaction.
func (w *Writer) Flush() error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	ops := w.buffer
	w.buffer = make([]WriteOp, 0, w.maxSize)
	w.mu.Unlock()

	return w.executeBatch(ops)
}

func (w *Writer) executeBatch(ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	atomic.AddUint64(&w.metrics.TotalWrites, uint64(len(ops)))
	atomic.AddUint64(&w.metrics.TotalBatches, 1)
	w.metrics.LastBatchSize = len(ops)
	w.metrics.LastFlushTime = time.Now()

	tx, err := w.db.Begin()
	if err != nil {
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		log.Printf("batch: begin transaction: %v", err)
		return err
	}

	for _, op := range ops {
		if _, err := tx.Exec(op.Query, op.Args...); err != nil {
			tx.Rollback()
			atomic.AddUint64(&w.metrics.TotalErrors, 1)
			log.Printf("batch: query failed, rolling back: %v", err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		atomic.AddUint64(&w.metrics.TotalErrors, 1)
		log.Printf("batch: commit failed: %v", err)
		return err
	}

	return nil
}

func (w *Writer) backgroundFlush() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.Printf("batch: background flush error: %v", err)
			}
		case <-w.done:
			if err := w.Flush(); err != nil {
				log.Printf("batch: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending reports the number of buffered, unflushed operations.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// GetMetrics returns a snapshot of batching statistics.
func (w *Writer) GetMetrics() Metrics {
	return Metrics{
		TotalWrites:   atomic.LoadUint64(&w.metrics.TotalWrites),
		TotalBatches:  atomic.LoadUint64(&w.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&w.metrics.TotalErrors),
		LastBatchSize: w.metrics.LastBatchSize,
		LastFlushTime: w.metrics.LastFlushTime,
	}
}

// Close flushes any remaining operations and stops the background
// flush loop.
func (w *Writer) Close() error {
	close(w.done)
	w.wg.Wait()
	return nil
}
