// Package events provides the in-process pub/sub bus carrying quote and
// order lifecycle events from the engines to transport subscribers.
package events

import "sync"

// Topic identifies an event stream on the bus.
type Topic string

// Order lifecycle topics.
const (
	TopicOrderPlaced   Topic = "order.placed"
	TopicOrderClosed   Topic = "order.closed"
	TopicOrderRejected Topic = "order.rejected"
)

// QuoteTopic keys the quote stream for one account and symbol.
func QuoteTopic(accountID, symbol string) Topic {
	return Topic("quote." + accountID + "." + symbol)
}

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan any)}
}

// Subscribe registers a listener for a topic and returns the channel
// and an unsubscribe function. Unsubscribing closes the channel.
func (b *Bus) Subscribe(t Topic, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[t] = append(b.subs[t], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[t]) == 0 {
			delete(b.subs, t)
		}
	}

	return ch, unsub
}

// Publish fans the payload out to subscribers without blocking.
func (b *Bus) Publish(t Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[t] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
