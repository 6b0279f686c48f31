package store

import (
	"context"
	"database/sql"
	"time"

	"backtest-core/aggregate"
	"backtest-core/execution"
	"backtest-core/records"
)

// Run is one persisted simulation run's metadata.
type Run struct {
	ID         string
	Driver     string
	Bars       int
	Cols       int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// CreateRun inserts a new run row in status "running".
func (s *Store) CreateRun(ctx context.Context, id, driver string, bars, cols int) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (id, driver, bars, cols, status, started_at)
		VALUES (?, ?, ?, ?, 'running', CURRENT_TIMESTAMP)
	`, id, driver, bars, cols)
	return err
}

// FinishRun marks a run complete (status "done") or failed (status
// "failed" with errMsg set).
func (s *Store) FinishRun(ctx context.Context, id, status, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, errMsg, id)
	return err
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	var errMsg sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, driver, bars, cols, status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Driver, &r.Bars, &r.Cols, &r.Status, &errMsg, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return &r, nil
}

// SaveOrderRecords persists one column's fills for a run.
func (s *Store) SaveOrderRecords(ctx context.Context, runID string, col int, fills []records.OrderRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_records (run_id, col, id, idx, size, price, fees, side)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range fills {
		if _, err := stmt.ExecContext(ctx, runID, col, f.ID, f.Idx, f.Size, f.Price, f.Fees, sideLabel(f.Side)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveTradeRecords persists one column's aggregated trade rows (entry,
// exit, or position) for a run.
func (s *Store) SaveTradeRecords(ctx context.Context, runID string, col int, kind string, trades []aggregate.TradeRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_records (
			run_id, col, kind, id, parent_id, size, entry_idx, entry_price, entry_fees,
			exit_idx, exit_price, exit_fees, pnl, return, direction, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, col, kind, t.ID, t.ParentID, t.Size, t.EntryIdx, t.EntryPrice,
			t.EntryFees, t.ExitIdx, t.ExitPrice, t.ExitFees, t.PnL, t.Return, directionLabel(t.Direction), statusLabel(t.Status)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListOrderRecords returns all persisted fills for a run, across columns.
func (s *Store) ListOrderRecords(ctx context.Context, runID string) ([]records.OrderRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT col, id, idx, size, price, fees, side FROM order_records
		WHERE run_id = ? ORDER BY col, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.OrderRecord
	for rows.Next() {
		var rec records.OrderRecord
		var side string
		if err := rows.Scan(&rec.Col, &rec.ID, &rec.Idx, &rec.Size, &rec.Price, &rec.Fees, &side); err != nil {
			return nil, err
		}
		rec.Side = sideFromLabel(side)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func sideLabel(side execution.Side) string {
	if side == execution.Buy {
		return "buy"
	}
	return "sell"
}

func sideFromLabel(s string) execution.Side {
	if s == "buy" {
		return execution.Buy
	}
	return execution.Sell
}

func directionLabel(d aggregate.TradeDirection) string {
	if d == aggregate.Long {
		return "long"
	}
	return "short"
}

func statusLabel(st aggregate.TradeStatus) string {
	if st == aggregate.Open {
		return "open"
	}
	return "closed"
}
