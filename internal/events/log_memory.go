package events

import (
	"context"
	"sync"
)

// MemoryLog is an in-process append-only event log. Sequence numbers start at
// 1 and have no gaps.
type MemoryLog struct {
	mu     sync.RWMutex
	events []Event
	notify chan struct{}
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{notify: make(chan struct{})}
}

// Append stamps event with the next sequence number and wakes waiters.
func (l *MemoryLog) Append(_ context.Context, event Event) (Event, error) {
	l.mu.Lock()
	event.Seq = uint64(len(l.events)) + 1
	l.events = append(l.events, event)
	close(l.notify)
	l.notify = make(chan struct{})
	l.mu.Unlock()
	return event, nil
}

// Since returns up to limit events with Seq > after, oldest first. A
// non-positive limit returns everything after the cursor.
func (l *MemoryLog) Since(_ context.Context, after uint64, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if after >= uint64(len(l.events)) {
		return nil, nil
	}
	tail := l.events[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	return append([]Event{}, tail...), nil
}

// Notify returns a channel closed on the next Append.
func (l *MemoryLog) Notify() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.notify
}
