// Package events fans out status and reaction events to push subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/autoreact/pkg/logger"
)

const defaultBuffer = 64

// Hub delivers every published event to every open subscription. Publish
// never blocks: a subscriber whose buffer is full loses the event.
type Hub struct {
	buffer int

	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	snapshot func() []Event

	closed  atomic.Bool
	dropped atomic.Uint64
}

// Subscription is one consumer's ordered view of the hub.
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   chan Event
	once sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[uint64]*Subscription)}
}

// SetSnapshot registers the source of state replayed to new subscribers.
func (h *Hub) SetSnapshot(fn func() []Event) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

func (h *Hub) Publish(e Event) {
	if h.closed.Load() {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
			logger.DebugCF("events", "Subscriber buffer full, event dropped", map[string]any{
				"subscriber": sub.id,
				"event":      string(e.Kind),
			})
		}
	}
}

// Subscribe opens a subscription that first receives the current snapshot.
// It returns nil once the hub is closed.
func (h *Hub) Subscribe() *Subscription {
	if h.closed.Load() {
		return nil
	}

	h.mu.RLock()
	snapshotFn := h.snapshot
	h.mu.RUnlock()

	var initial []Event
	if snapshotFn != nil {
		initial = snapshotFn()
	}

	sub := &Subscription{hub: h, ch: make(chan Event, h.buffer)}
	for _, e := range initial {
		select {
		case sub.ch <- e:
		default:
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		close(sub.ch)
		return nil
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	return sub
}

// Events is closed when the subscription or the hub is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}
