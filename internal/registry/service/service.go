package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"seisreg/internal/events"
	"seisreg/internal/registry/metrics"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/requestcontext"
)

// Store gives the service serialized access to the registry tables.
type Store interface {
	RunInTx(ctx context.Context, fn func(tables store.Tables) error) error
}

// NativeGateway moves native currency between buyers, the registry's custody
// account and recipients. Capture escrows funds from a buyer before a
// purchase commits; Send releases funds held in custody.
type NativeGateway interface {
	Capture(ctx context.Context, from id.Address, amount uint64) error
	Send(ctx context.Context, to id.Address, amount uint64) error
}

// TokenGateway moves fungible tokens. TransferFrom pulls from a buyer into
// custody; Transfer pushes from custody. Either signals failure by returning
// false or an error.
type TokenGateway interface {
	TransferFrom(ctx context.Context, token, from id.Address, amount uint64) (bool, error)
	Transfer(ctx context.Context, token, to id.Address, amount uint64) (bool, error)
}

// EventPublisher receives a notification after every committed state change.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) (events.Event, error)
}

// Service is the registry core. Every public operation authenticates the
// caller from the context, evaluates its guards inside a store transaction
// and only then mutates. Gateway calls happen between transactions so a
// gateway that calls back into the service cannot deadlock it.
type Service struct {
	store     Store
	native    NativeGateway
	tokens    TokenGateway
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service. The store and both gateways are required.
func New(st Store, native NativeGateway, tokens TokenGateway, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "registry store is required")
	}
	if native == nil || tokens == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "payment gateways are required")
	}
	s := &Service{
		store:  st,
		native: native,
		tokens: tokens,
		logger: slog.Default(),
		tracer: otel.Tracer("seisreg/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// begin opens a span and returns a finisher that records latency and the
// error status. Use as: ctx, done := s.begin(ctx, "op"); defer func() { done(err) }().
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(operation, start)
		}
	}
}

// record logs an audit line and publishes the notification. It runs inside
// the committing transaction, after every write, so event sequence follows
// commit order. A publisher must therefore never call back into the service.
// Emission failures are logged and do not undo the state change.
func (s *Service) record(ctx context.Context, event events.Event, attributes ...any) {
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	args := append(attributes,
		"event", string(event.Kind),
		"actor", event.Actor.String(),
		"log_type", "audit",
	)
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	s.logger.InfoContext(ctx, string(event.Kind), args...)
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish registry event",
			"event", string(event.Kind),
			"error", err,
		)
	}
}
