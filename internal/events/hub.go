// Package events fans orchestrator activity out to live subscribers.
package events

import (
	"context"
	"sync"
	"time"
)

type Kind string

const (
	KindCreated   Kind = "created"
	KindAnnotated Kind = "annotated"
	KindDeleted   Kind = "deleted"
	KindFailed    Kind = "failed"
	KindCycle     Kind = "cycle"
)

type Event struct {
	Kind    Kind      `json:"kind"`
	ItemID  string    `json:"itemId,omitempty"`
	Title   string    `json:"title,omitempty"`
	Count   int       `json:"count,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Hub broadcasts events to subscribers. Slow subscribers drop events rather
// than block the publisher. The zero value is not usable; call NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
	now    func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{}), buffer: 32, now: time.Now}
}

// Publish stamps e (when At is zero) and delivers it to every subscriber.
// A nil hub discards events.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel of events that is closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

// Subscribers reports the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
