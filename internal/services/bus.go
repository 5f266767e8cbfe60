package services

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// subscriptionBuffer is the per-connection event queue size. A consumer that
// falls this far behind is treated as dead and further events are dropped for
// that connection only (delivery is at-most-once, best-effort).
const subscriptionBuffer = 32

// Event is one push-style notification as seen by a single device connection.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"data"`
}

// Subscription is one device's registration with the bus. It lives only for
// the lifetime of the open stream and is never persisted.
type Subscription struct {
	identityID string
	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
}

// Events returns the channel the connection's consumer loop drains.
// Events arrive in publish order.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription is removed, waking any consumer loop
// blocked on it.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// EventBus fans events out to every currently-open connection of a target
// identity. It is process-local state: it grows on Subscribe, shrinks on
// Unsubscribe, and an identity with zero open connections loses published
// events permanently.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers a new device connection for an identity. An identity
// may hold any number of simultaneous subscriptions.
func (b *EventBus) Subscribe(identityID string) *Subscription {
	sub := &Subscription{
		identityID: identityID,
		events:     make(chan Event, subscriptionBuffer),
		done:       make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[identityID] = append(b.subs[identityID], sub)
	devices := len(b.subs[identityID])
	b.mu.Unlock()

	log.Info().Str("identity_id", identityID).Int("devices", devices).Msg("Event subscription opened")
	return sub
}

// Unsubscribe removes a subscription. Safe to call more than once; the
// registration entry for the identity is deleted when its last subscription
// goes away so the map never grows without bound.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	sub.closeOnce.Do(func() {
		b.mu.Lock()
		subs := b.subs[sub.identityID]
		for i, s := range subs {
			if s == sub {
				subs = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(b.subs, sub.identityID)
		} else {
			b.subs[sub.identityID] = subs
		}
		b.mu.Unlock()

		close(sub.done)
		log.Info().Str("identity_id", sub.identityID).Msg("Event subscription closed")
	})
}

// Publish enqueues an event to every open subscription of the target
// identity, in publish order, and returns immediately. Publishing to an
// identity with no open connections is a silent no-op.
func (b *EventBus) Publish(identityID, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to marshal event payload")
		return
	}
	ev := Event{Type: eventType, Payload: data}

	b.mu.RLock()
	subs := b.subs[identityID]
	if len(subs) == 0 {
		b.mu.RUnlock()
		log.Debug().Str("identity_id", identityID).Str("event", eventType).Msg("No open connections, event dropped")
		return
	}
	for _, sub := range subs {
		select {
		case sub.events <- ev:
		default:
			log.Warn().Str("identity_id", identityID).Str("event", eventType).Msg("Subscription buffer full, event dropped")
		}
	}
	b.mu.RUnlock()
}

// HasConnections reports whether an identity currently has any open connection
func (b *EventBus) HasConnections(identityID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[identityID]) > 0
}

// Shutdown wakes every consumer loop so in-flight streams can terminate
// during server shutdown.
func (b *EventBus) Shutdown() {
	b.mu.RLock()
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.mu.RUnlock()

	for _, sub := range all {
		b.Unsubscribe(sub)
	}
}
