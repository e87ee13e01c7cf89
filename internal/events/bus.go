package events

import "sync"

// Bus is the engine's topic-keyed broker. Publishing never blocks: a
// subscriber whose buffer is full misses the message. Subscriptions are
// typed at the edge via Subscribe, so consumers receive the payload type a
// topic contracts for instead of asserting on it themselves.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]*subscriber
}

type subscriber struct {
	deliver func(any) bool
	stop    func()
}

// NewBus creates an empty broker.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]*subscriber)}
}

// Subscribe registers a typed listener on topic e. Payloads published on e
// that are not a T are skipped for this subscriber, never a panic. The
// returned cancel function drops the registration and closes the channel.
func Subscribe[T any](b *Bus, e Event, buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	sub := &subscriber{
		deliver: func(payload any) bool {
			v, ok := payload.(T)
			if !ok {
				return true
			}
			select {
			case ch <- v:
				return true
			default:
				return false
			}
		},
		stop: func() { close(ch) },
	}

	b.mu.Lock()
	b.subs[e] = append(b.subs[e], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[e]
		for i, s := range list {
			if s == sub {
				b.subs[e] = append(list[:i], list[i+1:]...)
				sub.stop()
				return
			}
		}
	}
	return ch, cancel
}

// Publish fans payload out to every subscriber of e without blocking the
// publisher. It reports how many subscribers could not keep up and missed
// the message.
func (b *Bus) Publish(e Event, payload any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, sub := range b.subs[e] {
		if !sub.deliver(payload) {
			dropped++
		}
	}
	return dropped
}
