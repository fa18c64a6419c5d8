// Package pubsub provides the in-process observer bus the core uses to
// notify the UI-adapter layer of state changes. Delivery is at-least-once
// within the process; there is no cross-process guarantee.
package pubsub

import "sync"

// Topic names a change-notification channel.
type Topic string

const (
	TopicLedgerChanged  Topic = "ledger.changed"
	TopicSessionChanged Topic = "session.changed"
	TopicMarketEvent    Topic = "market.event"
	TopicPriceTick      Topic = "price.tick"
)

// Event is one notification published on the bus.
type Event struct {
	Topic   Topic  `json:"topic"`
	Symbol  string `json:"symbol,omitempty"`
	Account string `json:"account,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Subscriber receives events on C for its subscribed topics.
type Subscriber struct {
	C      chan Event
	topics map[Topic]bool
}

// Wants reports whether the subscriber is interested in the topic.
// An empty topic set means all topics.
func (s *Subscriber) Wants(t Topic) bool {
	return len(s.topics) == 0 || s.topics[t]
}

// Bus fans events out to subscribers. Publish never blocks: if a
// subscriber's buffer is full the event is dropped for that subscriber so
// slow consumers cannot stall the engine or trade execution.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber for the given topics (all topics when
// none are given) with a buffered delivery channel.
func (b *Bus) Subscribe(buffer int, topics ...Topic) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscriber{
		C:      make(chan Event, buffer),
		topics: make(map[Topic]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.C)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every interested subscriber without
// blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.Wants(ev.Topic) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			// Drop for this subscriber rather than block the publisher.
		}
	}
}
