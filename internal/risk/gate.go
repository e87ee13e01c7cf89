package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"scalping-core/internal/events"
	"scalping-core/internal/signal"
	"scalping-core/pkg/db"
)

// Confidence scoring thresholds. Confidence below the penalty threshold adds
// score proportionally; below the warning threshold it also warns.
const (
	confidencePenaltyBelow = 0.7
	confidenceWarnBelow    = 0.6
	shortDurationTicks     = 3
)

// Gate is the admission-control engine. It is the only component allowed to
// authorize stake amounts or refuse a trade outright.
type Gate struct {
	mu     sync.Mutex
	limits Limits
	stats  TradingStats
	pause  *PauseWindow

	currentBalance    float64
	peakBalance       float64
	dailyStartBalance float64
	dayKey            string
	hourKey           string

	database *db.Database
	bus      *events.Bus
	now      func() time.Time
}

// NewGate creates a gate persisted to the database, reloading any previous
// snapshot before accepting candidates.
func NewGate(limits Limits, database *db.Database, bus *events.Bus) (*Gate, error) {
	g := &Gate{
		limits:   limits,
		database: database,
		bus:      bus,
		now:      time.Now,
	}
	if database != nil {
		state, err := database.LoadRiskState(context.Background())
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("load risk state: %w", err)
			}
		} else {
			g.restore(state)
			log.Printf("risk: restored state (%d trades, streak %dL/%dW, paused=%v)",
				g.stats.TotalTrades, g.stats.ConsecutiveLosses, g.stats.ConsecutiveWins, g.pause != nil)
		}
	}
	return g, nil
}

// NewInMemory creates a gate without persistence.
func NewInMemory(limits Limits) *Gate {
	return &Gate{limits: limits, now: time.Now}
}

// Evaluate scores a candidate against current statistics and returns the
// admission decision. Identical inputs under an unchanged clock yield
// identical decisions.
func (g *Gate) Evaluate(candidate signal.Candidate, snapshot signal.AccountSnapshot) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.currentBalance = snapshot.Balance
	if snapshot.Balance > g.peakBalance {
		g.peakBalance = snapshot.Balance
	}
	g.rollWindows(now)

	if g.pause != nil {
		if now.Before(g.pause.Until) {
			return Decision{
				Verdict: VerdictRejected,
				Score:   100,
				Level:   LevelExtreme,
				Reasons: []string{"trading paused: " + g.pause.Reason},
			}
		}
		g.resumeLocked("pause window expired")
	}

	var (
		score    float64
		warnings []string
		reasons  []string
	)
	add := func(pts float64, reason, warning string) {
		score += pts
		if reason != "" {
			reasons = append(reasons, reason)
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	// Balance adequacy.
	switch {
	case snapshot.Balance < g.limits.MinBalance:
		add(50, fmt.Sprintf("balance too low: $%.2f < $%.2f", snapshot.Balance, g.limits.MinBalance), "")
	case snapshot.Balance < g.limits.MinBalance*1.5:
		add(20, "", "balance approaching minimum threshold")
	}
	if snapshot.Balance > 0 {
		stakePct := g.limits.MaxStake / snapshot.Balance * 100
		if stakePct > 10 {
			add(math.Min(stakePct-10, 25), "", fmt.Sprintf("high stake percentage: %.1f%% of balance", stakePct))
		}
	}

	// Daily loss consumption.
	dailyLoss := -g.stats.DailyPnL
	switch {
	case dailyLoss >= g.limits.MaxDailyLoss:
		add(50, fmt.Sprintf("daily loss limit reached: $%.2f", dailyLoss), "")
	case dailyLoss >= g.limits.MaxDailyLoss*0.8:
		add(30, "", "approaching daily loss limit")
	case dailyLoss >= g.limits.MaxDailyLoss*0.6:
		add(15, "", "60% of daily loss limit used")
	}

	// Daily trade-count saturation.
	switch {
	case g.stats.DailyTrades >= g.limits.MaxTradesPerDay:
		add(30, fmt.Sprintf("daily trade limit reached: %d", g.stats.DailyTrades), "")
	case float64(g.stats.DailyTrades) >= float64(g.limits.MaxTradesPerDay)*0.9:
		add(15, "", "approaching daily trade limit")
	}

	// Consecutive-loss proximity.
	switch {
	case g.stats.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses:
		add(40, fmt.Sprintf("consecutive loss limit reached: %d", g.stats.ConsecutiveLosses), "")
	case g.stats.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses-1:
		add(25, "", "one loss away from consecutive loss limit")
	case g.stats.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses-2:
		add(15, "", "approaching consecutive loss limit")
	}

	// Hourly trade-count saturation.
	switch {
	case g.stats.HourlyTrades >= g.limits.MaxTradesPerHour:
		add(25, fmt.Sprintf("hourly trade limit reached: %d", g.stats.HourlyTrades), "")
	case float64(g.stats.HourlyTrades) >= float64(g.limits.MaxTradesPerHour)*0.9:
		add(10, "", "approaching hourly trade limit")
	}

	// Drawdown from peak.
	if dd := g.drawdownLocked(); dd > 0 {
		switch {
		case dd >= g.limits.MaxDrawdownPercent:
			add(50, fmt.Sprintf("maximum drawdown exceeded: %.1f%%", dd), "")
		case dd >= g.limits.MaxDrawdownPercent*0.8:
			add(30, "", fmt.Sprintf("high drawdown: %.1f%%", dd))
		case dd >= g.limits.MaxDrawdownPercent*0.6:
			add(15, "", fmt.Sprintf("moderate drawdown: %.1f%%", dd))
		}
	}

	// Candidate signal quality.
	if candidate.Confidence < confidencePenaltyBelow {
		score += (confidencePenaltyBelow - candidate.Confidence) * 30
		if candidate.Confidence < confidenceWarnBelow {
			warnings = append(warnings, fmt.Sprintf("low confidence signal: %.2f", candidate.Confidence))
		}
	}
	if candidate.Duration <= shortDurationTicks {
		score += 5
		warnings = append(warnings, "very short duration signal")
	}

	if len(reasons) > 0 {
		return Decision{Verdict: VerdictRejected, Score: round1(score), Level: LevelExtreme, Reasons: reasons, Warnings: warnings}
	}
	if score >= 75 {
		return Decision{
			Verdict:  VerdictRejected,
			Score:    round1(score),
			Level:    LevelExtreme,
			Reasons:  []string{"risk score too high"},
			Warnings: warnings,
		}
	}

	stake := math.Min(g.limits.MaxStake, g.limits.MaxStake*math.Max(0.1, 1-score/100))
	stake = math.Round(stake*100) / 100

	switch {
	case score >= 50:
		return Decision{Verdict: VerdictApprovedReduced, Stake: stake, Score: round1(score), Level: LevelHigh, Warnings: warnings}
	case score >= 25:
		return Decision{Verdict: VerdictApprovedReduced, Stake: stake, Score: round1(score), Level: LevelModerate, Warnings: warnings}
	default:
		return Decision{Verdict: VerdictApproved, Stake: g.limits.MaxStake, Score: round1(score), Level: LevelLow, Warnings: warnings}
	}
}

// Record updates rolling statistics for a settled trade and re-checks breach
// conditions, so a breach pauses trading before the next candidate is even
// considered.
func (g *Gate) Record(outcome Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollWindows(now)

	g.stats.TotalTrades++
	g.stats.TotalPnL += outcome.PnL
	g.stats.DailyPnL += outcome.PnL
	g.stats.DailyTrades++
	g.stats.HourlyTrades++
	g.stats.LastTradeTime = now

	if outcome.Won {
		g.stats.WinningTrades++
		g.stats.ConsecutiveWins++
		g.stats.ConsecutiveLosses = 0
	} else {
		g.stats.LosingTrades++
		g.stats.ConsecutiveLosses++
		g.stats.ConsecutiveWins = 0
		if g.stats.ConsecutiveLosses > g.stats.MaxConsecutiveLosses {
			g.stats.MaxConsecutiveLosses = g.stats.ConsecutiveLosses
		}
	}

	g.checkBreachesLocked(now)
	g.persistLocked()

	log.Printf("risk: trade recorded pnl=$%.2f win_rate=%.1f%% streak=%dL/%dW",
		outcome.PnL, g.stats.WinRate(), g.stats.ConsecutiveLosses, g.stats.ConsecutiveWins)
}

func (g *Gate) checkBreachesLocked(now time.Time) {
	if g.pause != nil {
		return
	}

	if g.stats.ConsecutiveLosses >= g.limits.MaxConsecutiveLosses {
		g.pauseLocked(fmt.Sprintf("consecutive loss limit reached: %d", g.stats.ConsecutiveLosses), now.Add(g.limits.Cooldown))
		return
	}
	if g.stats.DailyPnL < 0 && -g.stats.DailyPnL >= g.limits.MaxDailyLoss {
		// Pause until the daily window rolls over.
		g.pauseLocked(fmt.Sprintf("daily loss limit reached: $%.2f", -g.stats.DailyPnL), nextMidnightUTC(now))
		return
	}
	if dd := g.drawdownLocked(); dd >= g.limits.MaxDrawdownPercent {
		g.pauseLocked(fmt.Sprintf("maximum drawdown exceeded: %.1f%%", dd), now.Add(g.limits.Cooldown))
	}
}

func (g *Gate) pauseLocked(reason string, until time.Time) {
	g.pause = &PauseWindow{Reason: reason, Until: until}
	log.Printf("risk: trading paused until %s: %s", until.UTC().Format(time.RFC3339), reason)
	if g.bus != nil {
		g.bus.Publish(events.EventRiskAlert, fmt.Sprintf("trading paused: %s (until %s)", reason, until.UTC().Format(time.RFC3339)))
	}
}

func (g *Gate) resumeLocked(why string) {
	g.pause = nil
	log.Printf("risk: trading resumed (%s)", why)
	g.persistLocked()
}

// ForceResume clears an active pause window immediately.
func (g *Gate) ForceResume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pause != nil {
		g.resumeLocked("manual override")
	}
}

// State reports ACTIVE or PAUSED.
func (g *Gate) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pause != nil && g.now().Before(g.pause.Until) {
		return "PAUSED"
	}
	return "ACTIVE"
}

// Stats returns a snapshot of the rolling statistics.
func (g *Gate) Stats() TradingStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Pause returns a copy of the active pause window, if any.
func (g *Gate) Pause() *PauseWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pause == nil {
		return nil
	}
	p := *g.pause
	return &p
}

// Summary returns the observable risk state for the status API.
func (g *Gate) Summary() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := "ACTIVE"
	var pause *PauseWindow
	if g.pause != nil {
		status = "PAUSED"
		p := *g.pause
		pause = &p
	}
	return map[string]any{
		"status":           status,
		"pause":            pause,
		"stats":            g.stats,
		"peak_balance":     g.peakBalance,
		"current_balance":  g.currentBalance,
		"drawdown_percent": round1(g.drawdownLocked()),
		"limits":           g.limits,
	}
}

// ResetDailyStats clears the daily window counters.
func (g *Gate) ResetDailyStats() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.DailyPnL = 0
	g.stats.DailyTrades = 0
	g.dailyStartBalance = g.currentBalance
	g.persistLocked()
	log.Printf("risk: daily stats manually reset")
}

// rollWindows resets window counters when a UTC boundary has passed.
// Streaks and all-time counters are never touched here.
func (g *Gate) rollWindows(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	hour := now.UTC().Format("2006-01-02T15")

	if g.dayKey == "" {
		g.dayKey = day
	} else if g.dayKey != day {
		log.Printf("risk: daily window rollover (pnl was $%.2f over %d trades)", g.stats.DailyPnL, g.stats.DailyTrades)
		g.stats.DailyPnL = 0
		g.stats.DailyTrades = 0
		g.dailyStartBalance = g.currentBalance
		g.dayKey = day
	}

	if g.hourKey == "" {
		g.hourKey = hour
	} else if g.hourKey != hour {
		g.stats.HourlyTrades = 0
		g.hourKey = hour
	}
}

func (g *Gate) drawdownLocked() float64 {
	if g.peakBalance <= 0 {
		return 0
	}
	return (g.peakBalance - g.currentBalance) / g.peakBalance * 100
}

func (g *Gate) persistLocked() {
	if g.database == nil {
		return
	}
	state := db.RiskState{
		TotalTrades:          g.stats.TotalTrades,
		WinningTrades:        g.stats.WinningTrades,
		LosingTrades:         g.stats.LosingTrades,
		ConsecutiveWins:      g.stats.ConsecutiveWins,
		ConsecutiveLosses:    g.stats.ConsecutiveLosses,
		MaxConsecutiveLosses: g.stats.MaxConsecutiveLosses,
		TotalPnL:             g.stats.TotalPnL,
		DailyPnL:             g.stats.DailyPnL,
		DailyTrades:          g.stats.DailyTrades,
		HourlyTrades:         g.stats.HourlyTrades,
		PeakBalance:          g.peakBalance,
		DailyStartBalance:    g.dailyStartBalance,
		DayKey:               g.dayKey,
		HourKey:              g.hourKey,
	}
	if g.pause != nil {
		state.Paused = true
		state.PauseReason = g.pause.Reason
		until := g.pause.Until
		state.PauseUntil = &until
	}
	if err := g.database.SaveRiskState(context.Background(), state); err != nil {
		log.Printf("risk: persist state: %v", err)
	}
}

func (g *Gate) restore(state db.RiskState) {
	g.stats = TradingStats{
		TotalTrades:          state.TotalTrades,
		WinningTrades:        state.WinningTrades,
		LosingTrades:         state.LosingTrades,
		ConsecutiveWins:      state.ConsecutiveWins,
		ConsecutiveLosses:    state.ConsecutiveLosses,
		MaxConsecutiveLosses: state.MaxConsecutiveLosses,
		TotalPnL:             state.TotalPnL,
		DailyPnL:             state.DailyPnL,
		DailyTrades:          state.DailyTrades,
		HourlyTrades:         state.HourlyTrades,
	}
	g.peakBalance = state.PeakBalance
	g.dailyStartBalance = state.DailyStartBalance
	g.dayKey = state.DayKey
	g.hourKey = state.HourKey
	if state.Paused && state.PauseUntil != nil {
		g.pause = &PauseWindow{Reason: state.PauseReason, Until: *state.PauseUntil}
	}
}

func nextMidnightUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
