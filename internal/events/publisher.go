package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Log is the append-only store behind a Publisher.
type Log interface {
	Append(ctx context.Context, event Event) (Event, error)
	Since(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// Publisher stamps events with an id and timestamp and appends them to the
// log. The registry emits from inside its commit, once every check has
// passed, so consumers never see an event for a rejected operation and
// sequence numbers follow commit order.
type Publisher struct {
	log Log
}

func NewPublisher(log Log) *Publisher {
	return &Publisher{log: log}
}

func (p *Publisher) Emit(ctx context.Context, event Event) (Event, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.log.Append(ctx, event)
}

// Since lists events after cursor for polling consumers.
func (p *Publisher) Since(ctx context.Context, after uint64, limit int) ([]Event, error) {
	return p.log.Since(ctx, after, limit)
}
