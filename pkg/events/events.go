package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pitlane/paddock/pkg/metrics"
)

// Topic identifies a stream of related events
type Topic string

const (
	TopicStats            Topic = "stats"
	TopicDeploymentStatus Topic = "deployment_status"
	TopicSystemHealth     Topic = "system_health"
)

// Event represents a single published record
type Event struct {
	ID        string
	Topic     Topic
	Timestamp time.Time
	Payload   interface{}
}

// Buffer per subscription
const subscriptionBuffer = 50

// Subscription receives events for the topics it was created with
type Subscription struct {
	id     string
	topics map[Topic]bool
	ch     chan Event
	lag    atomic.Uint64
}

// ID returns the subscription's unique identifier
func (s *Subscription) ID() string {
	return s.id
}

// C returns the receive channel. It is closed when the subscription is
// removed from the broker.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Lag returns how many events this subscription has lost to a full queue
func (s *Subscription) Lag() uint64 {
	return s.lag.Load()
}

// matches reports whether the subscription wants events for topic.
// A subscription created with no topics receives everything.
func (s *Subscription) matches(topic Topic) bool {
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[topic]
}

// Broker manages event subscriptions and distribution. Publishing never
// blocks: a subscription that cannot keep up loses its oldest queued
// events first.
type Broker struct {
	subscriptions map[string]*Subscription
	mu            sync.RWMutex
	closed        bool
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscriptions: make(map[string]*Subscription),
	}
}

// Subscribe creates a new subscription for the given topics and returns it.
// With no topics the subscription receives every event.
func (b *Broker) Subscribe(topics ...Topic) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		topics: make(map[Topic]bool, len(topics)),
		ch:     make(chan Event, subscriptionBuffer),
	}
	for _, topic := range topics {
		sub.topics[topic] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subscriptions[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscriptions[sub.id]; !ok {
		return
	}
	delete(b.subscriptions, sub.id)
	close(sub.ch)
}

// Publish materializes an event for payload and delivers it to every
// subscription matching topic. Delivery is non-blocking: when a
// subscription's queue is full, the oldest queued event is dropped and
// the subscription's lag counter incremented until the new event fits.
func (b *Broker) Publish(topic Topic, payload interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(topic)).Inc()

	for _, sub := range b.subscriptions {
		if !sub.matches(topic) {
			continue
		}
		b.offer(sub, event)
	}
}

// offer enqueues event on sub, evicting the oldest queued event while the
// queue is full. Each iteration either delivers or frees a slot, so the
// loop terminates.
func (b *Broker) offer(sub *Subscription, event Event) {
	for {
		select {
		case sub.ch <- event:
			return
		default:
		}

		select {
		case dropped := <-sub.ch:
			sub.lag.Add(1)
			metrics.EventsDroppedTotal.WithLabelValues(string(dropped.Topic)).Inc()
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions and closes their channels. Publish
// becomes a no-op afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subscriptions {
		delete(b.subscriptions, id)
		close(sub.ch)
	}
}
