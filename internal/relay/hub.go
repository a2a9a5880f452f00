package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrHubClosed is returned by Publish after Close
var ErrHubClosed = errors.New("relay hub closed")

// Hub is the in-process relay. Subscribers are guarded by an RWMutex so
// publishing never waits on subscribe or close, and sends never block.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	closed bool
}

// Subscription receives events published after it was created
type Subscription struct {
	ID     string
	events chan Event
	hub    *Hub
	once   sync.Once
}

// NewHub creates a hub whose subscriptions buffer up to buffer events
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscription
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		events: make(chan Event, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.events) })
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Publish hands event to every current subscriber. A subscriber whose
// buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	dropped := 0
	for _, sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().
			Str("event", string(event.Kind)).
			Uint("visit_id", event.VisitID).
			Int("dropped", dropped).
			Msg("Relay subscribers too slow, event dropped")
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.events) })
	}
}

// Events is closed once the subscription ends
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subs, s.ID)
	s.once.Do(func() { close(s.events) })
}
