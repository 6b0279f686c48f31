// Package records implements the pre-allocated, column-major order and
// log buffers the simulation drivers append to (spec.md §3.3): bounded
// capacity per column, monotonic per-column ids, overflow reported as a
// CapacityError rather than growing the buffer.
package records

import (
	"backtest-core/execution"
	"backtest-core/internal/simerrors"
)

// OrderRecord is one filled order (spec.md §3.2).
type OrderRecord struct {
	ID    int
	Col   int
	Idx   int
	Size  float64
	Price float64
	Fees  float64
	Side  execution.Side
}

// LogRecord is one logged order attempt, filled or not, carrying the
// full pre/post state and order request plus a cross-reference to the
// OrderRecord it produced (-1 if unfilled).
type LogRecord struct {
	ID      int
	Group   int
	Col     int
	Idx     int
	OHLC    execution.PriceArea
	PreState  execution.State
	Order     execution.Order
	PostState execution.State
	Result    execution.Result
	OrderID   int // -1 if no fill was appended
}

// OrderBuffer is a pre-allocated, append-only column-major buffer of
// order records for one column, with a bounded capacity (max_orders).
type OrderBuffer struct {
	col      int
	records  []OrderRecord
	cursor   int
}

// NewOrderBuffer allocates a buffer for column col with room for
// capacity records.
func NewOrderBuffer(col, capacity int) *OrderBuffer {
	return &OrderBuffer{col: col, records: make([]OrderRecord, capacity)}
}

// Append writes one fill, assigning it the next column-local monotonic
// id. Returns a CapacityError if the buffer is full.
func (b *OrderBuffer) Append(idx int, size, price, fees float64, side execution.Side) (int, error) {
	if b.cursor >= len(b.records) {
		return -1, simerrors.NewCapacityError("order buffer for column %d exhausted at capacity %d; raise max_orders", b.col, len(b.records))
	}
	id := b.cursor
	b.records[b.cursor] = OrderRecord{ID: id, Col: b.col, Idx: idx, Size: size, Price: price, Fees: fees, Side: side}
	b.cursor++
	return id, nil
}

// Len reports how many records have been appended.
func (b *OrderBuffer) Len() int { return b.cursor }

// Records returns the appended records (excluding unused capacity).
func (b *OrderBuffer) Records() []OrderRecord { return b.records[:b.cursor] }

// LogBuffer is the log-record analogue of OrderBuffer.
type LogBuffer struct {
	col     int
	records []LogRecord
	cursor  int
}

// NewLogBuffer allocates a buffer for column col with room for
// capacity records.
func NewLogBuffer(col, capacity int) *LogBuffer {
	return &LogBuffer{col: col, records: make([]LogRecord, capacity)}
}

// Append writes one log entry. Returns a CapacityError if the buffer is full.
func (b *LogBuffer) Append(group, idx int, ohlc execution.PriceArea, pre execution.State, order execution.Order, post execution.State, result execution.Result, orderID int) (int, error) {
	if b.cursor >= len(b.records) {
		return -1, simerrors.NewCapacityError("log buffer for column %d exhausted at capacity %d; raise max_logs", b.col, len(b.records))
	}
	id := b.cursor
	b.records[b.cursor] = LogRecord{
		ID: id, Group: group, Col: b.col, Idx: idx, OHLC: ohlc,
		PreState: pre, Order: order, PostState: post, Result: result, OrderID: orderID,
	}
	b.cursor++
	return id, nil
}

// Len reports how many records have been appended.
func (b *LogBuffer) Len() int { return b.cursor }

// Records returns the appended records (excluding unused capacity).
func (b *LogBuffer) Records() []LogRecord { return b.records[:b.cursor] }
