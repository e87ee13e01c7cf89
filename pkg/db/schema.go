package db

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    contract_id TEXT,
    symbol TEXT NOT NULL,
    direction TEXT NOT NULL,
    stake REAL NOT NULL,
    duration INTEGER NOT NULL,
    entry_price REAL NOT NULL,
    entry_time DATETIME NOT NULL,
    exit_price REAL DEFAULT 0,
    exit_time DATETIME,
    pnl REAL DEFAULT 0,
    payout REAL DEFAULT 0,
    status TEXT NOT NULL,
    strategy TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_contract ON orders(contract_id);

CREATE TABLE IF NOT EXISTS risk_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    total_trades INTEGER DEFAULT 0,
    winning_trades INTEGER DEFAULT 0,
    losing_trades INTEGER DEFAULT 0,
    consecutive_wins INTEGER DEFAULT 0,
    consecutive_losses INTEGER DEFAULT 0,
    max_consecutive_losses INTEGER DEFAULT 0,
    total_pnl REAL DEFAULT 0,
    daily_pnl REAL DEFAULT 0,
    daily_trades INTEGER DEFAULT 0,
    hourly_trades INTEGER DEFAULT 0,
    peak_balance REAL DEFAULT 0,
    daily_start_balance REAL DEFAULT 0,
    day_key TEXT DEFAULT '',
    hour_key TEXT DEFAULT '',
    paused INTEGER DEFAULT 0,
    pause_reason TEXT DEFAULT '',
    pause_until DATETIME,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations creates the schema if it does not exist yet.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
