package observability

import (
	"context"
	"errors"
	"roomgate/internal/storage"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("roomgate/storage")
	meter := otel.Meter("roomgate/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

// record ends span and records latency. A missing key is an answer, not a
// failure.
func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
		span.SetStatus(codes.Ok, "")
	default:
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func (s *InstrumentedStorage) Get(ctx context.Context, key string) ([]int64, error) {
	ctx, span := s.startSpan(ctx, "Get", attribute.String("limiter.key", key))
	start := time.Now()
	value, err := s.inner.Get(ctx, key)
	span.SetAttributes(attribute.Bool("storage.found", err == nil))
	s.record(ctx, span, "Get", start, err)
	return value, err
}

func (s *InstrumentedStorage) Put(ctx context.Context, key string, value []int64) error {
	ctx, span := s.startSpan(ctx, "Put",
		attribute.String("limiter.key", key),
		attribute.Int("limiter.values", len(value)),
	)
	start := time.Now()
	err := s.inner.Put(ctx, key, value)
	s.record(ctx, span, "Put", start, err)
	return err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("limiter.key", key))
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.record(ctx, span, "Delete", start, err)
	return err
}

func (s *InstrumentedStorage) List(ctx context.Context, prefix string) ([]storage.Entry, error) {
	ctx, span := s.startSpan(ctx, "List", attribute.String("limiter.prefix", prefix))
	start := time.Now()
	entries, err := s.inner.List(ctx, prefix)
	span.SetAttributes(attribute.Int("storage.entries", len(entries)))
	s.record(ctx, span, "List", start, err)
	return entries, err
}

// Lock spans only the wait for the lock, not the section it guards.
func (s *InstrumentedStorage) Lock(ctx context.Context, name string) (func(), error) {
	ctx, span := s.startSpan(ctx, "Lock", attribute.String("limiter.lock", name))
	start := time.Now()
	unlock, err := s.inner.Lock(ctx, name)
	s.record(ctx, span, "Lock", start, err)
	return unlock, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
