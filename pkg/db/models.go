package db

import "time"

// Order is the persisted form of a tracked order.
type Order struct {
	ID         string
	ContractID string
	Symbol     string
	Direction  string
	Stake      float64
	Duration   int
	EntryPrice float64
	EntryTime  time.Time
	ExitPrice  float64
	ExitTime   *time.Time
	PnL        float64
	Payout     float64
	Status     string
	Strategy   string
	CreatedAt  time.Time
}

// RiskState is the single persisted snapshot of the risk gate.
type RiskState struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	ConsecutiveWins      int
	ConsecutiveLosses    int
	MaxConsecutiveLosses int
	TotalPnL             float64
	DailyPnL             float64
	DailyTrades          int
	HourlyTrades         int
	PeakBalance          float64
	DailyStartBalance    float64
	DayKey               string
	HourKey              string
	Paused               bool
	PauseReason          string
	PauseUntil           *time.Time
}
