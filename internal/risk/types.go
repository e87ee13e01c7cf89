package risk

import "time"

// Verdict is the admission decision for one candidate order.
type Verdict string

const (
	VerdictApproved        Verdict = "APPROVED"
	VerdictApprovedReduced Verdict = "APPROVED_REDUCED"
	VerdictRejected        Verdict = "REJECTED"
)

// Level classifies how risky the current conditions are.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
	LevelExtreme  Level = "EXTREME"
)

// Decision is the result of evaluating one candidate against current stats.
// Warnings are returned regardless of the verdict, for observability.
type Decision struct {
	Verdict  Verdict  `json:"verdict"`
	Stake    float64  `json:"stake"`
	Score    float64  `json:"score"` // 0..100
	Level    Level    `json:"level"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Approved reports whether the order may be placed at Decision.Stake.
func (d Decision) Approved() bool {
	return d.Verdict == VerdictApproved || d.Verdict == VerdictApprovedReduced
}

// Outcome is one settled trade reported back to the gate.
type Outcome struct {
	PnL float64
	Won bool
}

// Limits defines the risk gate's hard ceilings and sizing inputs.
type Limits struct {
	MaxStake             float64
	MaxDailyLoss         float64
	MaxConsecutiveLosses int
	MaxTradesPerHour     int
	MaxTradesPerDay      int
	Cooldown             time.Duration
	MinBalance           float64
	MaxDrawdownPercent   float64
}

// DefaultLimits returns the stock limits for a small live account.
func DefaultLimits() Limits {
	return Limits{
		MaxStake:             0.25,
		MaxDailyLoss:         1.50,
		MaxConsecutiveLosses: 5,
		MaxTradesPerHour:     15,
		MaxTradesPerDay:      100,
		Cooldown:             60 * time.Minute,
		MinBalance:           2.00,
		MaxDrawdownPercent:   40,
	}
}

// TradingStats are the rolling counters the gate scores against. Window
// counters reset at UTC boundaries; streaks and all-time counters never
// reset on rollover.
type TradingStats struct {
	TotalTrades          int       `json:"total_trades"`
	WinningTrades        int       `json:"winning_trades"`
	LosingTrades         int       `json:"losing_trades"`
	ConsecutiveWins      int       `json:"consecutive_wins"`
	ConsecutiveLosses    int       `json:"consecutive_losses"`
	MaxConsecutiveLosses int       `json:"max_consecutive_losses"`
	TotalPnL             float64   `json:"total_pnl"`
	DailyPnL             float64   `json:"daily_pnl"`
	DailyTrades          int       `json:"daily_trades"`
	HourlyTrades         int       `json:"hourly_trades"`
	LastTradeTime        time.Time `json:"last_trade_time"`
}

// WinRate returns the all-time win percentage.
func (s TradingStats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades) * 100
}

// PauseWindow is an active trading suspension.
type PauseWindow struct {
	Reason string    `json:"reason"`
	Until  time.Time `json:"until"`
}
