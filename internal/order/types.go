package order

import (
	"context"
	"time"

	"scalping-core/internal/risk"
	"scalping-core/internal/signal"
)

// Status is the lifecycle phase of one order. Transitions are monotonic:
// PENDING → ACTIVE → {WON, LOST, CANCELLED, ERROR}.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusWon       Status = "WON"
	StatusLost      Status = "LOST"
	StatusCancelled Status = "CANCELLED"
	StatusError     Status = "ERROR"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Order tracks one submitted candidate from placement to settlement.
// Immutable once terminal.
type Order struct {
	ID         string           `json:"id"` // client-generated, assigned before the venue's own id
	ContractID string           `json:"contract_id,omitempty"`
	Symbol     string           `json:"symbol"`
	Direction  signal.Direction `json:"direction"`
	Stake      float64          `json:"stake"`
	Duration   int              `json:"duration"` // venue ticks
	EntryPrice float64          `json:"entry_price"`
	EntryTime  time.Time        `json:"entry_time"`
	ExitPrice  float64          `json:"exit_price,omitempty"`
	ExitTime   time.Time        `json:"exit_time,omitempty"`
	PnL        float64          `json:"pnl"`
	Payout     float64          `json:"payout,omitempty"`
	Status     Status           `json:"status"`
	Strategy   string           `json:"strategy,omitempty"`
}

// Placement is what the venue returns for a successfully placed contract.
type Placement struct {
	ContractID string
	BuyPrice   float64
	Payout     float64
}

// Venue is the narrow placement surface the manager needs from the protocol
// client.
type Venue interface {
	PlaceContract(ctx context.Context, direction signal.Direction, symbol string, stake float64, durationTicks int) (Placement, error)
}

// Report is the submission result handed back to the strategy layer.
type Report struct {
	Decision risk.Decision `json:"decision"`
	Order    *Order        `json:"order,omitempty"` // nil when rejected
}

// ExecutionStats are the manager's running submission counters.
type ExecutionStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	Rejected    int     `json:"rejected"`
	Active      int     `json:"active"`
	Completed   int     `json:"completed"`
	SuccessRate float64 `json:"success_rate"` // percent of placements that reached the venue
}
