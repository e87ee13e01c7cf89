package events

import "testing"

func TestTypedSubscriptionReceivesPayload(t *testing.T) {
	bus := NewBus()
	alerts, cancel := Subscribe[string](bus, EventRiskAlert, 4)
	defer cancel()

	if dropped := bus.Publish(EventRiskAlert, "trading paused"); dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	select {
	case got := <-alerts:
		if got != "trading paused" {
			t.Fatalf("payload = %q, want the published alert", got)
		}
	default:
		t.Fatal("no payload delivered")
	}
}

func TestMismatchedPayloadTypeIsSkipped(t *testing.T) {
	bus := NewBus()
	gaps, cancel := Subscribe[ReconciliationGap](bus, EventReconciliationGap, 4)
	defer cancel()

	// A wrong-typed publish must neither panic nor count as a drop.
	if dropped := bus.Publish(EventReconciliationGap, "not a gap"); dropped != 0 {
		t.Fatalf("dropped = %d for mismatched payload, want 0", dropped)
	}
	select {
	case got := <-gaps:
		t.Fatalf("mismatched payload delivered: %+v", got)
	default:
	}

	bus.Publish(EventReconciliationGap, ReconciliationGap{OrderID: "o-1"})
	select {
	case got := <-gaps:
		if got.OrderID != "o-1" {
			t.Fatalf("gap = %+v, want order o-1", got)
		}
	default:
		t.Fatal("typed payload not delivered")
	}
}

func TestSlowSubscriberMissesMessages(t *testing.T) {
	bus := NewBus()
	stream, cancel := Subscribe[int](bus, EventPriceTick, 1)
	defer cancel()

	bus.Publish(EventPriceTick, 1)
	if dropped := bus.Publish(EventPriceTick, 2); dropped != 1 {
		t.Fatalf("dropped = %d with a full buffer, want 1", dropped)
	}
	if got := <-stream; got != 1 {
		t.Fatalf("delivered = %d, want the first message", got)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	stream, cancel := Subscribe[string](bus, EventRiskAlert, 1)
	cancel()

	if _, ok := <-stream; ok {
		t.Fatal("channel still open after cancel")
	}
	if dropped := bus.Publish(EventRiskAlert, "late"); dropped != 0 {
		t.Fatalf("dropped = %d after cancel, want 0 (no subscribers left)", dropped)
	}
}
