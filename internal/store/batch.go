package store

import (
	"time"

	"backtest-core/aggregate"
	"backtest-core/internal/batch"
	"backtest-core/records"
)

// BatchPersister buffers order and trade record inserts through a
// batch.Writer so a large run's records flush in a handful of
// transactions instead of one per column.
type BatchPersister struct {
	w *batch.Writer
}

// NewBatchPersister opens a batched write path against the store's
// database handle.
func NewBatchPersister(s *Store, maxSize int, interval time.Duration) *BatchPersister {
	return &BatchPersister{w: batch.NewWriter(s.DB, maxSize, interval)}
}

// QueueOrderRecords enqueues one column's fills without blocking on a
// synchronous transaction.
func (p *BatchPersister) QueueOrderRecords(runID string, col int, fills []records.OrderRecord) {
	for _, f := range fills {
		p.w.WriteQuery(`
			INSERT INTO order_records (run_id, col, id, idx, size, price, fees, side)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, col, f.ID, f.Idx, f.Size, f.Price, f.Fees, sideLabel(f.Side))
	}
}

// QueueTradeRecords enqueues one column's aggregated trade rows.
func (p *BatchPersister) QueueTradeRecords(runID string, col int, kind string, trades []aggregate.TradeRecord) {
	for _, t := range trades {
		p.w.WriteQuery(`
			INSERT INTO trade_records (
				run_id, col, kind, id, parent_id, size, entry_idx, entry_price, entry_fees,
				exit_idx, exit_price, exit_fees, pnl, return, direction, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, col, kind, t.ID, t.ParentID, t.Size, t.EntryIdx, t.EntryPrice,
			t.EntryFees, t.ExitIdx, t.ExitPrice, t.ExitFees, t.PnL, t.Return, directionLabel(t.Direction), statusLabel(t.Status))
	}
}

// Flush forces any buffered records to disk immediately.
func (p *BatchPersister) Flush() error {
	return p.w.Flush()
}

// Metrics reports batching statistics for observability endpoints.
func (p *BatchPersister) Metrics() batch.Metrics {
	return p.w.GetMetrics()
}

// Close flushes remaining records and stops the background flush loop.
func (p *BatchPersister) Close() error {
	return p.w.Close()
}
