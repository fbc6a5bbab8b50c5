package queue

import (
	"testing"

	"yondaime/cache"
	"yondaime/events"
)

func ev(id, text string) events.Event {
	return events.Event{
		Type:           events.EVENT_TYPE_MESSAGE,
		WebhookEventID: id,
		Source:         events.Source{Type: "user", UserID: "u1"},
		Message:        &events.Message{ID: id, Type: events.MESSAGE_TYPE_TEXT, Text: text},
	}
}

func TestEnqueueDrainOrder(t *testing.T) {
	q := New(cache.NewMemory(), 3600)

	if err := q.Enqueue(ev("a", "one"), ev("b", "two")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ev("c", "three")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := q.DrainAll()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].WebhookEventID != id {
			t.Errorf("event %d: got id %q, want %q", i, got[i].WebhookEventID, id)
		}
	}
	if got[2].Message.Text != "three" {
		t.Errorf("event payload lost through the queue: %+v", got[2])
	}
}

func TestDrainConsumes(t *testing.T) {
	q := New(cache.NewMemory(), 3600)
	q.Enqueue(ev("a", "one"))

	if _, err := q.DrainAll(); err != nil {
		t.Fatalf("first drain: %v", err)
	}
	got, err := q.DrainAll()
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if got != nil {
		t.Errorf("second drain returned %d events, want none", len(got))
	}
}

func TestDrainEmpty(t *testing.T) {
	q := New(cache.NewMemory(), 3600)

	got, err := q.DrainAll()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil for empty backlog", got)
	}
}

func TestDepth(t *testing.T) {
	q := New(cache.NewMemory(), 3600)

	n, err := q.Depth()
	if err != nil || n != 0 {
		t.Fatalf("empty depth = %d, %v", n, err)
	}

	q.Enqueue(ev("a", "one"), ev("b", "two"))
	n, err = q.Depth()
	if err != nil || n != 2 {
		t.Fatalf("depth = %d, %v, want 2", n, err)
	}
}
