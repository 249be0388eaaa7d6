// Package broker provides an in-process publish/subscribe hub connecting the
// camera agents and the global tracker. Every subscriber owns an independent
// inbound queue and receives a copy of each alert published after it
// subscribed; publishers never block on a slow consumer.
package broker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sentinel-vision/multicam/internal/alert"
)

// Config holds broker tuning parameters.
type Config struct {
	// MaxQueueDepth bounds each subscriber's inbound queue. When the bound is
	// reached the oldest queued alert is dropped to make room (drop-oldest).
	// Zero means unbounded: a subscriber that never drains grows its queue
	// without limit, which is a deliberate, documented exhaustion risk.
	MaxQueueDepth int
}

// DefaultConfig returns the default broker configuration: unbounded queues.
func DefaultConfig() Config {
	return Config{MaxQueueDepth: 0}
}

// Subscription is a handle to one subscriber's inbound queue. The broker owns
// the queue; only the subscribing component should drain it.
type Subscription struct {
	id string

	mu      sync.Mutex
	queue   []alert.Alert
	dropped uint64
}

// ID returns the subscription's unique identifier, used to unsubscribe.
func (s *Subscription) ID() string { return s.id }

// take returns the queued alerts in arrival order and empties the queue.
func (s *Subscription) take() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	out := s.queue
	s.queue = nil
	return out
}

// push appends an alert, applying the drop-oldest bound when configured.
func (s *Subscription) push(a alert.Alert, maxDepth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxDepth > 0 && len(s.queue) >= maxDepth {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped++
	}
	s.queue = append(s.queue, a)
}

// Stats is a snapshot of broker counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Broker is the fanout hub. It is the only component in the system touched
// concurrently by every worker, so all subscriber-set and queue mutations are
// serialised here.
type Broker struct {
	config Config

	subscriberMu sync.Mutex
	subscribers  map[string]*Subscription
	published    uint64
	closed       bool
}

// New creates a Broker with the given configuration.
func New(config Config) *Broker {
	return &Broker{
		config:      config,
		subscribers: make(map[string]*Subscription),
	}
}

// Subscribe registers a new, empty, independent inbound queue. The returned
// subscription observes only alerts published after this call.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{id: uuid.NewString()}
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	if b.closed {
		return sub // orphan handle: drains empty forever
	}
	b.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription from the fanout set. Draining the handle
// afterwards returns whatever was queued before removal, then nothing.
func (b *Broker) Unsubscribe(id string) {
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	delete(b.subscribers, id)
}

// Publish delivers a copy of the alert to every current subscription in the
// order publish calls are observed by the broker. Publishing with no
// subscribers is not an error; the alert is simply not retained.
func (b *Broker) Publish(a alert.Alert) {
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	if b.closed {
		return
	}
	b.published++
	for _, sub := range b.subscribers {
		sub.push(a, b.config.MaxQueueDepth)
	}
}

// Drain returns, in arrival order, every alert queued on the subscription
// since its last drain, then empties the backing queue. It never blocks; an
// empty result just means nothing is pending.
func (b *Broker) Drain(sub *Subscription) []alert.Alert {
	return sub.take()
}

// Stats returns a snapshot of the broker counters, including alerts dropped
// by the bounded-queue policy.
func (b *Broker) Stats() Stats {
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	s := Stats{
		Subscribers: len(b.subscribers),
		Published:   b.published,
	}
	for _, sub := range b.subscribers {
		sub.mu.Lock()
		s.Dropped += sub.dropped
		sub.mu.Unlock()
	}
	return s
}

// Close removes all subscriptions and rejects further publishes. Existing
// subscription handles keep returning their already-queued alerts on drain.
func (b *Broker) Close() {
	b.subscriberMu.Lock()
	defer b.subscriberMu.Unlock()
	b.closed = true
	for id := range b.subscribers {
		delete(b.subscribers, id)
	}
}
