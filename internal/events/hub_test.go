package events

import (
	"context"
	"testing"
	"time"
)

func TestHubDeliversToEverySubscriber(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Subscribe(ctx)
	b := h.Subscribe(ctx)
	h.Publish(Event{Kind: KindAnnotated, ItemID: "PVTI_1"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			if e.Kind != KindAnnotated || e.ItemID != "PVTI_1" {
				t.Fatalf("unexpected event %+v", e)
			}
			if e.At.IsZero() {
				t.Fatalf("event was not stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("event not delivered")
		}
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Subscribe(ctx)

	for i := 0; i < h.buffer+10; i++ {
		h.Publish(Event{Kind: KindCycle, Count: i})
	}
	if got := len(ch); got != h.buffer {
		t.Fatalf("buffered %d events, want %d", got, h.buffer)
	}
}

func TestHubUnsubscribesOnCancel(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscriber not removed")
	}
	h.Publish(Event{Kind: KindCycle})
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	h.Publish(Event{Kind: KindCycle})
}
