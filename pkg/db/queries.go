package db

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertOrder inserts or replaces an order row.
func (d *Database) UpsertOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, contract_id, symbol, direction, stake, duration,
			entry_price, entry_time, exit_price, exit_time, pnl, payout, status, strategy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contract_id = excluded.contract_id,
			exit_price = excluded.exit_price,
			exit_time = excluded.exit_time,
			pnl = excluded.pnl,
			payout = excluded.payout,
			status = excluded.status
	`,
		o.ID, o.ContractID, o.Symbol, o.Direction, o.Stake, o.Duration,
		o.EntryPrice, o.EntryTime, o.ExitPrice, o.ExitTime, o.PnL, o.Payout, o.Status, o.Strategy,
	)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

// ListOpenOrders returns orders still in a non-terminal status.
func (d *Database) ListOpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, contract_id, symbol, direction, stake, duration,
		       entry_price, entry_time, exit_price, exit_time, pnl, payout, status, strategy, created_at
		FROM orders
		WHERE status IN ('PENDING', 'ACTIVE')
		ORDER BY entry_time
	`)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListRecentOrders returns the most recently created orders, newest first.
func (d *Database) ListRecentOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, contract_id, symbol, direction, stake, duration,
		       entry_price, entry_time, exit_price, exit_time, pnl, payout, status, strategy, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (Order, error) {
	var (
		o        Order
		contract sql.NullString
		strategy sql.NullString
		exitTime sql.NullTime
	)
	err := rows.Scan(
		&o.ID, &contract, &o.Symbol, &o.Direction, &o.Stake, &o.Duration,
		&o.EntryPrice, &o.EntryTime, &o.ExitPrice, &exitTime, &o.PnL, &o.Payout,
		&o.Status, &strategy, &o.CreatedAt,
	)
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.ContractID = contract.String
	o.Strategy = strategy.String
	if exitTime.Valid {
		t := exitTime.Time
		o.ExitTime = &t
	}
	return o, nil
}

// SaveRiskState writes the single risk snapshot row.
func (d *Database) SaveRiskState(ctx context.Context, s RiskState) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_state (
			id, total_trades, winning_trades, losing_trades,
			consecutive_wins, consecutive_losses, max_consecutive_losses,
			total_pnl, daily_pnl, daily_trades, hourly_trades,
			peak_balance, daily_start_balance, day_key, hour_key,
			paused, pause_reason, pause_until, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			losing_trades = excluded.losing_trades,
			consecutive_wins = excluded.consecutive_wins,
			consecutive_losses = excluded.consecutive_losses,
			max_consecutive_losses = excluded.max_consecutive_losses,
			total_pnl = excluded.total_pnl,
			daily_pnl = excluded.daily_pnl,
			daily_trades = excluded.daily_trades,
			hourly_trades = excluded.hourly_trades,
			peak_balance = excluded.peak_balance,
			daily_start_balance = excluded.daily_start_balance,
			day_key = excluded.day_key,
			hour_key = excluded.hour_key,
			paused = excluded.paused,
			pause_reason = excluded.pause_reason,
			pause_until = excluded.pause_until,
			updated_at = CURRENT_TIMESTAMP
	`,
		s.TotalTrades, s.WinningTrades, s.LosingTrades,
		s.ConsecutiveWins, s.ConsecutiveLosses, s.MaxConsecutiveLosses,
		s.TotalPnL, s.DailyPnL, s.DailyTrades, s.HourlyTrades,
		s.PeakBalance, s.DailyStartBalance, s.DayKey, s.HourKey,
		boolToInt(s.Paused), s.PauseReason, s.PauseUntil,
	)
	if err != nil {
		return fmt.Errorf("save risk state: %w", err)
	}
	return nil
}

// LoadRiskState reads the risk snapshot; returns sql.ErrNoRows when absent.
func (d *Database) LoadRiskState(ctx context.Context) (RiskState, error) {
	var (
		s          RiskState
		paused     int
		pauseUntil sql.NullTime
	)
	err := d.DB.QueryRowContext(ctx, `
		SELECT total_trades, winning_trades, losing_trades,
		       consecutive_wins, consecutive_losses, max_consecutive_losses,
		       total_pnl, daily_pnl, daily_trades, hourly_trades,
		       peak_balance, daily_start_balance, day_key, hour_key,
		       paused, pause_reason, pause_until
		FROM risk_state WHERE id = 1
	`).Scan(
		&s.TotalTrades, &s.WinningTrades, &s.LosingTrades,
		&s.ConsecutiveWins, &s.ConsecutiveLosses, &s.MaxConsecutiveLosses,
		&s.TotalPnL, &s.DailyPnL, &s.DailyTrades, &s.HourlyTrades,
		&s.PeakBalance, &s.DailyStartBalance, &s.DayKey, &s.HourKey,
		&paused, &s.PauseReason, &pauseUntil,
	)
	if err != nil {
		return RiskState{}, err
	}
	s.Paused = paused == 1
	if pauseUntil.Valid {
		t := pauseUntil.Time
		s.PauseUntil = &t
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
