package events

import (
	"context"
	"sync"
	"time"
)

// Topic identifies a class of session events.
type Topic string

const (
	// TopicCartChanged fires after any cart mutation.
	TopicCartChanged Topic = "cart.changed"
	// TopicCurrencyChanged fires when the display currency selection changes.
	TopicCurrencyChanged Topic = "currency.changed"
	// TopicRefreshApplied fires when a catalog+rates refresh is applied.
	TopicRefreshApplied Topic = "refresh.applied"
	// TopicCheckoutSettled fires on a successful checkout.
	TopicCheckoutSettled Topic = "checkout.settled"
)

// Event is delivered to every notifier subscribed to its topic.
type Event struct {
	Topic   Topic
	At      time.Time
	Payload any
}

// Notifier reacts to emitted events (persistence, metrics, logs).
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// Bus fans session events out to subscribed notifiers. Delivery is
// synchronous and in subscription order; notifiers that must not block the
// caller are responsible for going asynchronous themselves.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]Notifier
	all  []Notifier
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]Notifier)}
}

// Subscribe registers a notifier for one topic.
func (b *Bus) Subscribe(topic Topic, n Notifier) {
	if n == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], n)
}

// SubscribeAll registers a notifier for every topic.
func (b *Bus) SubscribeAll(n Notifier) {
	if n == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, n)
}

// Emit dispatches the event to all matching notifiers.
func (b *Bus) Emit(ctx context.Context, topic Topic, payload any) {
	if b == nil {
		return
	}
	event := Event{Topic: topic, At: time.Now(), Payload: payload}
	b.mu.RLock()
	targets := make([]Notifier, 0, len(b.subs[topic])+len(b.all))
	targets = append(targets, b.subs[topic]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()
	for _, n := range targets {
		n.Notify(ctx, event)
	}
}
