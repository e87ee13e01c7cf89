package events

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventPriceTick         Event = "price_tick"
	EventOrderSubmitted    Event = "order.submitted"
	EventOrderRejected     Event = "order.rejected"
	EventOrderActive       Event = "order.active"
	EventSettlement        Event = "order.settled"
	EventRiskAlert         Event = "risk_alert"
	EventReconciliationGap Event = "reconciliation_gap"
)

// Settlement is published once per order when it reaches a terminal status,
// for consumption by reporting/learning collaborators.
type Settlement struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"`
	PnL     float64 `json:"pnl"`
}

// ReconciliationGap is published when the expiry sweep forces an order to
// ERROR, signaling a potentially missed push.
type ReconciliationGap struct {
	OrderID    string `json:"order_id"`
	ContractID string `json:"contract_id"`
	AgeSeconds int64  `json:"age_seconds"`
}
