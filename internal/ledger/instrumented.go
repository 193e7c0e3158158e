package ledger

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"conversation-chaos/internal/config"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/tracing"
)

// InstrumentedStore logs, counts and traces every operation of the wrapped
// store. A missing record is an answer, not a failure, and is reported as
// success.
type InstrumentedStore struct {
	store   Store
	backend string
	logger  *logging.Logger
	metrics *monitoring.ChaosMetrics
	tracing *tracing.TracingService
}

var _ Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps store. Any of logger, metrics and ts may be nil.
func NewInstrumentedStore(store Store, logger *logging.Logger, metrics *monitoring.ChaosMetrics, ts *tracing.TracingService) *InstrumentedStore {
	if logger == nil {
		logger = logging.Discard()
	}
	if ts == nil {
		// A disabled service only wraps the global tracer and cannot fail.
		ts, _ = tracing.NewTracingService(config.TracingConfig{})
	}
	return &InstrumentedStore{
		store:   store,
		backend: Backend(store),
		logger:  logger,
		metrics: metrics,
		tracing: ts,
	}
}

func (s *InstrumentedStore) observe(ctx context.Context, operation, fingerprint string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracing.InstrumentLedgerOperation(ctx, operation, s.backend, fingerprint)
	defer span.End()

	started := time.Now()
	err := fn(ctx)

	reported := err
	if errors.Is(err, ErrRecordNotFound) {
		reported = nil
		span.AddEvent("record not found")
	}
	if reported != nil {
		span.RecordError(reported)
		span.SetStatus(codes.Error, reported.Error())
	}
	s.metrics.LedgerOperation(operation, reported)
	s.logger.LedgerOperation(ctx, operation, fingerprint, time.Since(started), reported)
	return err
}

func (s *InstrumentedStore) Put(ctx context.Context, rec *Record) error {
	fp := ""
	if rec != nil {
		fp = rec.Fingerprint
	}
	return s.observe(ctx, "put", fp, func(ctx context.Context) error {
		return s.store.Put(ctx, rec)
	})
}

func (s *InstrumentedStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	var rec *Record
	err := s.observe(ctx, "get", fingerprint, func(ctx context.Context) error {
		var err error
		rec, err = s.store.Get(ctx, fingerprint)
		return err
	})
	return rec, err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]*Record, error) {
	var recs []*Record
	err := s.observe(ctx, "list", "", func(ctx context.Context) error {
		var err error
		recs, err = s.store.List(ctx)
		if err == nil {
			oteltrace.SpanFromContext(ctx).AddEvent("listed", oteltrace.WithAttributes(attribute.Int("ledger.records", len(recs))))
		}
		return err
	})
	return recs, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, fingerprint string) error {
	return s.observe(ctx, "delete", fingerprint, func(ctx context.Context) error {
		return s.store.Delete(ctx, fingerprint)
	})
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}
