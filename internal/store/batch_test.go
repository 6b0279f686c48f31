package store

import (
	"context"
	"testing"
	"time"

	"backtest-core/aggregate"
	"backtest-core/execution"
	"backtest-core/records"
)

func TestBatchPersisterFlushesQueuedRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateRun(ctx, "run-batch", "from_orders", 5, 1); err != nil {
		t.Fatalf("create run: %v", err)
	}

	p := NewBatchPersister(s, 100, time.Hour)
	defer p.Close()

	fills := []records.OrderRecord{
		{ID: 0, Col: 0, Idx: 0, Size: 10, Price: 100, Fees: 1, Side: execution.Buy},
	}
	trades := []aggregate.TradeRecord{
		{ID: 0, Col: 0, Size: 10, EntryIdx: 0, EntryPrice: 100, ExitIdx: 3, ExitPrice: 110,
			PnL: 100, Return: 0.1, Direction: aggregate.Long, Status: aggregate.Closed, ParentID: 0},
	}

	p.QueueOrderRecords("run-batch", 0, fills)
	p.QueueTradeRecords("run-batch", 0, "entry", trades)

	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, err := s.ListOrderRecords(ctx, "run-batch")
	if err != nil {
		t.Fatalf("list order records: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 order record, got %d", len(got))
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM trade_records WHERE run_id = ?`, "run-batch").Scan(&count); err != nil {
		t.Fatalf("count trade records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 trade record, got %d", count)
	}

	if m := p.Metrics(); m.TotalWrites != 2 {
		t.Fatalf("expected 2 total writes tracked, got %d", m.TotalWrites)
	}
}
