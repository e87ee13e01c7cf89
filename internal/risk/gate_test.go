package risk

import (
	"strings"
	"testing"
	"time"

	"scalping-core/internal/signal"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func goodCandidate() signal.Candidate {
	return signal.Candidate{
		Direction:  signal.DirectionCall,
		Confidence: 0.85,
		Duration:   5,
		EntryPrice: 1234.56,
		Strategy:   "momentum",
	}
}

func TestEvaluateApprovesCleanCandidate(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	d := g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 5.00})
	if d.Verdict != VerdictApproved {
		t.Fatalf("verdict = %s, want %s (reasons: %v)", d.Verdict, VerdictApproved, d.Reasons)
	}
	if d.Stake != 0.25 {
		t.Fatalf("stake = %.2f, want 0.25", d.Stake)
	}
	if d.Level != LevelLow {
		t.Fatalf("level = %s, want %s", d.Level, LevelLow)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	g.stats.ConsecutiveLosses = 3
	g.stats.DailyPnL = -0.75

	first := g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 5.00})
	second := g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 5.00})

	if first.Verdict != second.Verdict || first.Stake != second.Stake || first.Score != second.Score {
		t.Fatalf("repeated evaluation diverged: %+v vs %+v", first, second)
	}
}

func TestEvaluateRejectsLowBalance(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	d := g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 1.50})
	if d.Verdict != VerdictRejected {
		t.Fatalf("verdict = %s, want %s", d.Verdict, VerdictRejected)
	}
	if len(d.Reasons) == 0 || !strings.Contains(d.Reasons[0], "balance too low") {
		t.Fatalf("reasons = %v, want balance rejection", d.Reasons)
	}
}

func TestEvaluateReducesStakeNearLossStreak(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	// One loss away from the streak limit scores 25 points exactly.
	g.stats.ConsecutiveLosses = 4

	d := g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 5.00})
	if d.Verdict != VerdictApprovedReduced {
		t.Fatalf("verdict = %s, want %s (score %.1f)", d.Verdict, VerdictApprovedReduced, d.Score)
	}
	if d.Level != LevelModerate {
		t.Fatalf("level = %s, want %s", d.Level, LevelModerate)
	}
	if d.Stake != 0.19 { // 0.25 * (1 - 25/100), rounded to cents
		t.Fatalf("stake = %.2f, want 0.19", d.Stake)
	}
}

func TestEvaluateWarnsOnLowConfidence(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	c := goodCandidate()
	c.Confidence = 0.30

	d := g.Evaluate(c, signal.AccountSnapshot{Balance: 5.00})
	if d.Verdict != VerdictApproved {
		t.Fatalf("verdict = %s, want %s (reasons: %v)", d.Verdict, VerdictApproved, d.Reasons)
	}
	found := false
	for _, w := range d.Warnings {
		if strings.Contains(w, "low confidence") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want low confidence warning", d.Warnings)
	}
}

func TestConsecutiveLossesPauseTrading(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	g.now = fixedClock(start)

	snapshot := signal.AccountSnapshot{Balance: 5.00}

	for i := 0; i < 5; i++ {
		d := g.Evaluate(goodCandidate(), snapshot)
		if !d.Approved() {
			t.Fatalf("trade %d rejected before streak limit: %v", i+1, d.Reasons)
		}
		g.Record(Outcome{PnL: -d.Stake, Won: false})
	}

	if g.State() != "PAUSED" {
		t.Fatalf("state = %s, want PAUSED after 5 consecutive losses", g.State())
	}
	p := g.Pause()
	if p == nil {
		t.Fatal("no pause window after streak breach")
	}
	if !strings.Contains(p.Reason, "consecutive loss") {
		t.Fatalf("pause reason = %q, want consecutive loss breach", p.Reason)
	}
	if want := start.Add(g.limits.Cooldown); !p.Until.Equal(want) {
		t.Fatalf("pause until = %v, want %v", p.Until, want)
	}

	d := g.Evaluate(goodCandidate(), snapshot)
	if d.Verdict != VerdictRejected {
		t.Fatalf("verdict while paused = %s, want %s", d.Verdict, VerdictRejected)
	}
	if len(d.Reasons) == 0 || !strings.Contains(d.Reasons[0], "trading paused") {
		t.Fatalf("reasons = %v, want pause rejection", d.Reasons)
	}
}

func TestForceResumeAfterWinClearsStreak(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	snapshot := signal.AccountSnapshot{Balance: 5.00}
	for i := 0; i < 5; i++ {
		g.Record(Outcome{PnL: -0.25, Won: false})
	}
	if g.State() != "PAUSED" {
		t.Fatalf("state = %s, want PAUSED", g.State())
	}

	g.ForceResume()
	g.Record(Outcome{PnL: 0.21, Won: true})

	if g.Stats().ConsecutiveLosses != 0 {
		t.Fatalf("consecutive losses = %d after win, want 0", g.Stats().ConsecutiveLosses)
	}
	d := g.Evaluate(goodCandidate(), snapshot)
	if !d.Approved() {
		t.Fatalf("verdict after resume and win = %s (reasons: %v)", d.Verdict, d.Reasons)
	}
}

func TestDailyLossPausesUntilMidnightUTC(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDailyLoss = 0.50
	g := NewInMemory(limits)
	now := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	g.now = fixedClock(now)

	g.Record(Outcome{PnL: -0.30, Won: false})
	g.Record(Outcome{PnL: -0.25, Won: false})

	p := g.Pause()
	if p == nil {
		t.Fatal("no pause window after daily loss breach")
	}
	if !strings.Contains(p.Reason, "daily loss") {
		t.Fatalf("pause reason = %q, want daily loss breach", p.Reason)
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !p.Until.Equal(want) {
		t.Fatalf("pause until = %v, want next midnight UTC %v", p.Until, want)
	}
}

func TestWindowRolloverResetsDailyCounters(t *testing.T) {
	g := NewInMemory(DefaultLimits())
	day1 := time.Date(2026, 3, 14, 23, 50, 0, 0, time.UTC)
	g.now = fixedClock(day1)

	g.Record(Outcome{PnL: -0.25, Won: false})
	if g.Stats().DailyTrades != 1 {
		t.Fatalf("daily trades = %d, want 1", g.Stats().DailyTrades)
	}

	g.now = fixedClock(day1.Add(30 * time.Minute)) // past midnight
	g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 5.00})

	s := g.Stats()
	if s.DailyTrades != 0 || s.DailyPnL != 0 {
		t.Fatalf("daily counters = %d trades $%.2f after rollover, want zero", s.DailyTrades, s.DailyPnL)
	}
	if s.TotalTrades != 1 || s.ConsecutiveLosses != 1 {
		t.Fatalf("all-time counters disturbed by rollover: %+v", s)
	}
}

func TestHourlyLimitRejects(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTradesPerHour = 3
	g := NewInMemory(limits)
	g.now = fixedClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	g.stats.HourlyTrades = 3

	d := g.Evaluate(goodCandidate(), signal.AccountSnapshot{Balance: 5.00})
	if d.Verdict != VerdictRejected {
		t.Fatalf("verdict = %s, want %s", d.Verdict, VerdictRejected)
	}
	if len(d.Reasons) == 0 || !strings.Contains(d.Reasons[0], "hourly trade limit") {
		t.Fatalf("reasons = %v, want hourly limit rejection", d.Reasons)
	}
}
