package store

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    driver TEXT NOT NULL,
    bars INTEGER NOT NULL,
    cols INTEGER NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS order_records (
    run_id TEXT NOT NULL,
    col INTEGER NOT NULL,
    id INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    size REAL NOT NULL,
    price REAL NOT NULL,
    fees REAL NOT NULL,
    side TEXT NOT NULL,
    PRIMARY KEY (run_id, col, id)
);

CREATE TABLE IF NOT EXISTS trade_records (
    run_id TEXT NOT NULL,
    col INTEGER NOT NULL,
    kind TEXT NOT NULL, -- 'entry' | 'exit' | 'position'
    id INTEGER NOT NULL,
    parent_id INTEGER NOT NULL,
    size REAL NOT NULL,
    entry_idx INTEGER NOT NULL,
    entry_price REAL NOT NULL,
    entry_fees REAL NOT NULL,
    exit_idx INTEGER NOT NULL,
    exit_price REAL NOT NULL,
    exit_fees REAL NOT NULL,
    pnl REAL NOT NULL,
    return REAL NOT NULL,
    direction TEXT NOT NULL,
    status TEXT NOT NULL,
    PRIMARY KEY (run_id, col, kind, id)
);
`

// ApplyMigrations bootstraps the schema.
func ApplyMigrations(s *Store) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
