package feed

import (
	"sync"
	"time"
)

type Kind string

const (
	SignalCreated  Kind = "signal_created"
	HoldCreated    Kind = "hold_created"
	HoldReleased   Kind = "hold_released"
	HoldForfeited  Kind = "hold_forfeited"
	ArrivalExpired Kind = "arrival_expired"
)

// Change is one mutation notification. Ref is the id of the affected record.
type Change struct {
	Kind Kind      `json:"kind"`
	Ref  string    `json:"ref"`
	At   time.Time `json:"at"`
}

// Hub fans changes out to subscribers. Subscribers own their Subscription
// and must Cancel it on teardown; nothing is tied to any UI lifecycle.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Change)
}

func NewHub() *Hub { return &Hub{subs: make(map[int]func(Change))} }

type Subscription struct {
	hub *Hub
	id  int
}

// Cancel detaches the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subs, s.id)
}

func (h *Hub) Subscribe(fn func(Change)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = fn
	return &Subscription{hub: h, id: id}
}

// Publish delivers the change to every current subscriber. Callbacks run on
// the publisher's goroutine; subscribers that need to block must hand off.
func (h *Hub) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	h.mu.RLock()
	fns := make([]func(Change), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}
