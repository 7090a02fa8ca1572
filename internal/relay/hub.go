package relay

import (
	"sync"
	"sync/atomic"

	"main/internal/obs"
)

// OverflowPolicy controls what happens to a consumer whose bounded
// queue is full when a new message arrives.
type OverflowPolicy uint8

const (
	// OverflowDropOldest discards the oldest queued message for the
	// lagging consumer only. The consumer stays connected and misses
	// messages; everyone else is unaffected. This is the default.
	OverflowDropOldest OverflowPolicy = iota

	// OverflowKick disconnects the lagging consumer outright.
	OverflowKick
)

// DefaultQueueCapacity bounds each subscriber queue.
const DefaultQueueCapacity = 10000

// Hub fans published messages out to every subscriber except the
// publisher itself. The subscriber list is copy-on-write behind an
// atomic pointer: Publish takes no lock, and mutation cost is confined
// to connect/disconnect scale operations.
type Hub struct {
	capacity int
	policy   OverflowPolicy
	metrics  *obs.Metrics

	mu     sync.Mutex
	subs   atomic.Pointer[[]*Subscription]
	closed atomic.Bool
}

// NewHub creates a hub with the given per-subscriber queue capacity.
func NewHub(capacity int, policy OverflowPolicy, metrics *obs.Metrics) *Hub {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	h := &Hub{capacity: capacity, policy: policy, metrics: metrics}
	empty := make([]*Subscription, 0)
	h.subs.Store(&empty)
	return h
}

// Subscribe registers a consumer. The subscription only sees messages
// published after this call; there is no replay of history.
func (h *Hub) Subscribe(id ConnID) *Subscription {
	sub := &Subscription{
		id:   id,
		ch:   make(chan []byte, h.capacity),
		done: make(chan struct{}),
		hub:  h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		sub.close()
		return sub
	}
	old := *h.subs.Load()
	next := make([]*Subscription, len(old)+1)
	copy(next, old)
	next[len(old)] = sub
	h.subs.Store(&next)
	return sub
}

// Unsubscribe removes a consumer and wakes its pending Recv.
func (h *Hub) Unsubscribe(id ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := *h.subs.Load()
	next := make([]*Subscription, 0, len(old))
	for _, s := range old {
		if s.id == id {
			s.close()
			continue
		}
		next = append(next, s)
	}
	h.subs.Store(&next)
}

// Publish delivers msg to every live subscriber except from. It never
// blocks: a full queue is resolved by the overflow policy. Returns the
// number of subscribers that received the message.
func (h *Hub) Publish(msg []byte, from ConnID) int {
	subs := *h.subs.Load()
	delivered := 0
	for _, s := range subs {
		if s.id == from {
			continue
		}
		switch s.offer(msg, h.policy) {
		case offerOK:
			delivered++
		case offerEvicted:
			delivered++
			h.metrics.IncBackpressureDrop()
		case offerFull:
			h.metrics.IncBackpressureDrop()
		case offerKick:
			h.metrics.IncKicked()
			s.close()
		}
	}
	return delivered
}

// Close shuts down every subscription. Idempotent.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range *h.subs.Load() {
		s.close()
	}
	empty := make([]*Subscription, 0)
	h.subs.Store(&empty)
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	return len(*h.subs.Load())
}

// Subscription is one consumer's bounded view of the broadcast stream.
type Subscription struct {
	id   ConnID
	ch   chan []byte
	done chan struct{}
	dead atomic.Bool
	hub  *Hub
}

// Recv blocks for the next message. It returns false once the
// subscription is closed, kicked or the hub shut down.
func (s *Subscription) Recv() ([]byte, bool) {
	select {
	case <-s.done:
		return nil, false
	case msg := <-s.ch:
		return msg, true
	}
}

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int { return len(s.ch) }

type offerResult uint8

const (
	offerOK offerResult = iota
	offerEvicted
	offerFull
	offerKick
	offerDead
)

// offer tries to enqueue without blocking. A full queue under
// OverflowDropOldest evicts the oldest entry and retries once; the
// eviction is still a drop from this consumer's point of view.
func (s *Subscription) offer(msg []byte, policy OverflowPolicy) offerResult {
	if s.dead.Load() {
		return offerDead
	}
	select {
	case s.ch <- msg:
		return offerOK
	default:
	}
	if policy == OverflowKick {
		return offerKick
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- msg:
		return offerEvicted
	default:
		return offerFull
	}
}

// close marks the subscription dead and wakes Recv. The channel itself
// is never closed so concurrent offers stay safe.
func (s *Subscription) close() {
	if s.dead.CompareAndSwap(false, true) {
		close(s.done)
	}
}
