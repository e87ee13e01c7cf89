package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"scalping-core/internal/events"
)

// Monitor watches risk alerts and reconciliation gaps and forwards them to
// the alert sink. The default sink is the process log.
type Monitor struct {
	Bus     *events.Bus
	AlertFn func(string)
}

// Start subscribes to alert-worthy topics. Returns immediately; delivery
// runs on background goroutines until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	if m.AlertFn == nil {
		m.AlertFn = func(s string) { log.Printf("[ALERT] %s", s) }
	}

	alerts, cancelAlerts := events.Subscribe[string](m.Bus, events.EventRiskAlert, 50)
	go drain(ctx, alerts, cancelAlerts, func(msg string) {
		m.AlertFn(stamp(msg))
	})

	gaps, cancelGaps := events.Subscribe[events.ReconciliationGap](m.Bus, events.EventReconciliationGap, 50)
	go drain(ctx, gaps, cancelGaps, func(gap events.ReconciliationGap) {
		m.AlertFn(stamp(fmt.Sprintf("order %s (contract %s) expired without settlement after %ds",
			gap.OrderID, gap.ContractID, gap.AgeSeconds)))
	})
}

func drain[T any](ctx context.Context, stream <-chan T, cancel func(), emit func(T)) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-stream:
			if !ok {
				return
			}
			emit(v)
		}
	}
}

func stamp(msg string) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + msg
}
