package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestNewAppliesConnectionTuning(t *testing.T) {
	database := newTestDB(t)

	// journal_mode reports "memory" on in-memory handles, so check the
	// pragmas that survive regardless of the backing store.
	var busyTimeout int
	if err := database.DB.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", busyTimeout)
	}

	var foreignKeys int
	if err := database.DB.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestOrderUpsertAndListing(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	entry := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	o := Order{
		ID:         "order-1",
		ContractID: "9001",
		Symbol:     "1HZ10V",
		Direction:  "CALL",
		Stake:      0.25,
		Duration:   5,
		EntryPrice: 1234.56,
		EntryTime:  entry,
		Status:     "ACTIVE",
		Strategy:   "momentum",
	}
	if err := database.UpsertOrder(ctx, o); err != nil {
		t.Fatalf("UpsertOrder: %v", err)
	}

	open, err := database.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("ListOpenOrders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open orders = %d, want 1", len(open))
	}
	if open[0].ID != "order-1" || open[0].Status != "ACTIVE" {
		t.Fatalf("unexpected open order: %+v", open[0])
	}
	if open[0].ExitTime != nil {
		t.Fatalf("exit time = %v on an open order, want nil", open[0].ExitTime)
	}

	// Settle via a second upsert of the same id.
	exit := entry.Add(12 * time.Second)
	o.Status = "WON"
	o.ExitPrice = 1234.90
	o.ExitTime = &exit
	o.PnL = 0.23
	if err := database.UpsertOrder(ctx, o); err != nil {
		t.Fatalf("UpsertOrder settle: %v", err)
	}

	open, err = database.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("ListOpenOrders: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("open orders after settlement = %d, want 0", len(open))
	}

	recent, err := database.ListRecentOrders(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentOrders: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent orders = %d, want 1", len(recent))
	}
	got := recent[0]
	if got.Status != "WON" || got.PnL != 0.23 {
		t.Fatalf("settled order not updated: %+v", got)
	}
	if got.ExitTime == nil || !got.ExitTime.Equal(exit) {
		t.Fatalf("exit time = %v, want %v", got.ExitTime, exit)
	}
}

func TestRiskStateRoundTrip(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if _, err := database.LoadRiskState(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("LoadRiskState on empty db = %v, want sql.ErrNoRows", err)
	}

	until := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	state := RiskState{
		TotalTrades:          12,
		WinningTrades:        7,
		LosingTrades:         5,
		ConsecutiveLosses:    2,
		MaxConsecutiveLosses: 4,
		TotalPnL:             1.15,
		DailyPnL:             -0.50,
		DailyTrades:          6,
		HourlyTrades:         3,
		PeakBalance:          6.40,
		DailyStartBalance:    5.90,
		DayKey:               "2026-03-14",
		HourKey:              "2026-03-14T10",
		Paused:               true,
		PauseReason:          "consecutive loss limit reached: 5",
		PauseUntil:           &until,
	}
	if err := database.SaveRiskState(ctx, state); err != nil {
		t.Fatalf("SaveRiskState: %v", err)
	}

	got, err := database.LoadRiskState(ctx)
	if err != nil {
		t.Fatalf("LoadRiskState: %v", err)
	}
	if got.TotalTrades != 12 || got.DailyPnL != -0.50 || got.DayKey != "2026-03-14" {
		t.Fatalf("restored state mismatch: %+v", got)
	}
	if !got.Paused || got.PauseUntil == nil || !got.PauseUntil.Equal(until) {
		t.Fatalf("pause window not restored: paused=%v until=%v", got.Paused, got.PauseUntil)
	}

	// The snapshot is a single row; saving again must replace, not append.
	state.TotalTrades = 13
	state.Paused = false
	state.PauseUntil = nil
	if err := database.SaveRiskState(ctx, state); err != nil {
		t.Fatalf("SaveRiskState update: %v", err)
	}
	got, err = database.LoadRiskState(ctx)
	if err != nil {
		t.Fatalf("LoadRiskState: %v", err)
	}
	if got.TotalTrades != 13 || got.Paused {
		t.Fatalf("updated state mismatch: %+v", got)
	}

	var count int
	if err := database.DB.QueryRow("SELECT COUNT(*) FROM risk_state").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("risk_state rows = %d, want 1", count)
	}
}
