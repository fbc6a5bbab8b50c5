// Package queue buffers webhook events between the fast acknowledge path
// and the deferred worker. The backlog lives in the cache as one JSON list
// so that the worker can drain everything accumulated since its last run.
package queue

import (
	"encoding/json"
	"fmt"

	"yondaime/cache"
	"yondaime/events"
)

const QUEUE_KEY = "async_event_queue"

type EventQueue struct {
	store      cache.Store
	ttlSeconds int
}

func New(store cache.Store, ttlSeconds int) *EventQueue {
	return &EventQueue{store: store, ttlSeconds: ttlSeconds}
}

// Enqueue appends the events to the backlog and refreshes its TTL.
// The read-append-write below is not atomic: two webhook deliveries landing
// at the same instant can overwrite each other's append. Accepted for now,
// the upstream channel serializes deliveries per bot in practice.
func (q *EventQueue) Enqueue(evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	backlog, err := q.read()
	if err != nil {
		return err
	}
	backlog = append(backlog, evs...)

	raw, err := json.Marshal(backlog)
	if err != nil {
		return fmt.Errorf("encode backlog: %w", err)
	}
	return q.store.Put(QUEUE_KEY, string(raw), q.ttlSeconds)
}

// DrainAll removes and returns the whole backlog in arrival order.
// An empty or expired backlog yields a nil slice and no error.
func (q *EventQueue) DrainAll() ([]events.Event, error) {
	backlog, err := q.read()
	if err != nil {
		return nil, err
	}
	if len(backlog) == 0 {
		return nil, nil
	}
	if err := q.store.Remove(QUEUE_KEY); err != nil {
		return nil, err
	}
	return backlog, nil
}

// Depth reports the current backlog size without consuming it.
func (q *EventQueue) Depth() (int, error) {
	backlog, err := q.read()
	if err != nil {
		return 0, err
	}
	return len(backlog), nil
}

func (q *EventQueue) read() ([]events.Event, error) {
	raw, err := q.store.Get(QUEUE_KEY)
	if err == cache.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var backlog []events.Event
	if err := json.Unmarshal([]byte(raw), &backlog); err != nil {
		return nil, fmt.Errorf("decode backlog: %w", err)
	}
	return backlog, nil
}
