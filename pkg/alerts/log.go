package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLogCap bounds how many alert events are retained.
const DefaultLogCap = 100

// Log is the bounded, append-only list of raised alerts. When the cap is
// exceeded the oldest events are trimmed. The log also tracks which events
// still await delivery to a notification sink.
type Log struct {
	mu         sync.Mutex
	events     []Event
	capacity   int
	dispatched map[string]bool
}

// NewLog creates an alert log with the default capacity.
func NewLog() *Log {
	return NewLogWithCap(DefaultLogCap)
}

// NewLogWithCap creates an alert log with an explicit capacity.
func NewLogWithCap(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &Log{
		capacity:   capacity,
		dispatched: make(map[string]bool),
	}
}

// Append stamps the event with an ID and timestamp and stores it, trimming
// the oldest entries beyond capacity. The stamped event is returned.
func (l *Log) Append(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if overflow := len(l.events) - l.capacity; overflow > 0 {
		for _, old := range l.events[:overflow] {
			delete(l.dispatched, old.ID)
		}
		l.events = append([]Event(nil), l.events[overflow:]...)
	}
	return e
}

// Recent returns up to n events, most recent first.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, 0, n)
	for i := len(l.events) - 1; i >= len(l.events)-n; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Undispatched returns events not yet delivered to a sink, oldest first.
func (l *Log) Undispatched() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for _, e := range l.events {
		if !l.dispatched[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// MarkDispatched records that the given events were delivered.
func (l *Log) MarkDispatched(events []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range events {
		l.dispatched[e.ID] = true
	}
}
