package orchestrator

import (
	"sync"
	"time"
)

// EventType identifies what happened during a run.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunFinished   EventType = "run_finished"
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskRetried   EventType = "task_retried"
)

// Event is one progress notification. Consumers (the gateway, metrics)
// must not assume delivery: slow subscribers lose events rather than
// stalling the run.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Service   string    `json:"service,omitempty"`
	Row       int       `json:"row,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 64

// EventBus fans events out to subscribers over buffered channels.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewEventBus creates an event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel function must be
// called when done.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking; full
// subscriber buffers drop the event.
func (b *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
