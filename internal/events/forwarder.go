package events

import (
	"context"
	"log/slog"
	"time"

	"seisreg/pkg/platform/circuit"
)

// Sink receives forwarded events. Publish must be idempotent per event ID;
// the forwarder redelivers from the last acknowledged sequence after a
// failure.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

// Source is the readable side of the log a Forwarder follows.
type Source interface {
	Since(ctx context.Context, after uint64, limit int) ([]Event, error)
	Notify() <-chan struct{}
}

type sinkCursor struct {
	sink    Sink
	breaker *circuit.Breaker
	cursor  uint64
}

// Forwarder follows the event log and pushes every event, in order, to each
// sink. Each sink keeps its own cursor and circuit breaker so one broken
// downstream does not stall the others.
type Forwarder struct {
	source       Source
	sinks        []*sinkCursor
	batchSize    int
	pollInterval time.Duration
	logger       *slog.Logger
}

type ForwarderOption func(*Forwarder)

func WithBatchSize(n int) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

func WithForwarderLogger(logger *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithBreaker replaces the default breaker factory settings.
func WithBreaker(threshold int, cooldown time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		for _, s := range f.sinks {
			s.breaker = circuit.New(s.sink.Name(), threshold, cooldown)
		}
	}
}

func NewForwarder(source Source, sinks []Sink, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		source:       source,
		batchSize:    100,
		pollInterval: time.Second,
		logger:       slog.Default(),
	}
	for _, sink := range sinks {
		f.sinks = append(f.sinks, &sinkCursor{
			sink:    sink,
			breaker: circuit.New(sink.Name(), 5, 30*time.Second),
		})
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run forwards until ctx is cancelled. It returns ctx.Err().
func (f *Forwarder) Run(ctx context.Context) error {
	if len(f.sinks) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		wake := f.source.Notify()
		progressed := false
		for _, s := range f.sinks {
			if f.drain(ctx, s) {
				progressed = true
			}
		}
		if progressed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// drain delivers one batch to a sink and reports whether a full batch went
// through, meaning more may be waiting.
func (f *Forwarder) drain(ctx context.Context, s *sinkCursor) bool {
	if ctx.Err() != nil || !s.breaker.Allow() {
		return false
	}
	batch, err := f.source.Since(ctx, s.cursor, f.batchSize)
	if err != nil {
		f.logger.ErrorContext(ctx, "failed to read event log",
			"sink", s.sink.Name(),
			"error", err,
		)
		return false
	}
	for _, event := range batch {
		if err := s.sink.Publish(ctx, event); err != nil {
			opened := s.breaker.RecordFailure()
			f.logger.WarnContext(ctx, "event sink publish failed",
				"sink", s.sink.Name(),
				"seq", event.Seq,
				"breaker_open", opened,
				"error", err,
			)
			return false
		}
		s.breaker.RecordSuccess()
		s.cursor = event.Seq
	}
	return len(batch) == f.batchSize
}
