// Package signal holds the boundary types exchanged with the (external)
// strategy layer: candidate orders coming in, account snapshots alongside.
package signal

import "time"

// Direction is the side of a candidate binary-options order.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Candidate is a proposed trade produced by the strategy layer, not yet
// risk-checked. Duration is in venue ticks.
type Candidate struct {
	Direction  Direction
	Confidence float64 // 0..1
	Duration   int
	EntryPrice float64
	Strategy   string
	Timestamp  time.Time
}

// AccountSnapshot is the account view the risk gate scores against.
type AccountSnapshot struct {
	Balance float64
}
