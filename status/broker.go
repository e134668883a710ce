package status

import (
	"sync"

	"github.com/rs/zerolog"
)

// Buffer per subscriber. A subscriber that falls this far behind starts
// losing events; status events describe current phase, not history, so
// dropping is acceptable.
const subscriberBuffer = 16

type subscriber struct {
	id int
	ch chan Event
}

// Broker is a conversation-scoped fan-out broadcaster. Publish delivers to
// every current subscriber of the conversation; there is no replay or
// backlog for late subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	nextID int
	logger zerolog.Logger
}

// NewBroker creates an empty Broker.
func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		subs:   make(map[string][]*subscriber),
		logger: logger.With().Str("component", "status-broker").Logger(),
	}
}

// Subscribe registers interest in one conversation's events. The returned
// cancel function removes the subscription and closes the channel; it is
// safe to call more than once.
func (b *Broker) Subscribe(conversationID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Event, subscriberBuffer)}
	b.subs[conversationID] = append(b.subs[conversationID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.unsubscribe(conversationID, sub.id) })
	}
	return sub.ch, cancel
}

func (b *Broker) unsubscribe(conversationID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[conversationID]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[conversationID] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(b.subs[conversationID]) == 0 {
		delete(b.subs, conversationID)
	}
}

// Publish fans an event out to the conversation's current subscribers. The
// send is non-blocking: a subscriber with a full buffer loses this event
// rather than stalling the producer.
func (b *Broker) Publish(conversationID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[conversationID] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn().
				Str("conversation_id", conversationID).
				Str("event_type", string(event.Type)).
				Int("subscriber_id", sub.id).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// SubscriberCount reports the number of active subscribers for a
// conversation. Used by tests and the health endpoint.
func (b *Broker) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}
