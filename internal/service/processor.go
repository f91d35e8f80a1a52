package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"logqueue/internal/model"
)

// DefaultBatchSize bounds the number of records written per transaction.
const DefaultBatchSize = 100

// Store defines the behavior required to deduplicate and persist entries.
type Store interface {
	// ExistingEventIDs returns the subset of ids already persisted.
	ExistingEventIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// InsertEntries writes entries in a single transaction and reports how
	// many rows were new. Entries whose event id already exists are skipped.
	InsertEntries(ctx context.Context, entries []model.LogEntry) (int64, error)
}

// Result summarizes one delivery.
type Result struct {
	Received      int
	Malformed     int
	Duplicates    int
	Persisted     int
	FailedBatches int
	// Failed holds the message ids that were not persisted and should be
	// redelivered by the queue.
	Failed []string
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for diagnostics. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithBatchSize sets the sub-batch size. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMeter sets the meter the processor records its counters on.
func WithMeter(m metric.Meter) Option {
	return func(p *Processor) { p.meter = m }
}

// WithClock overrides the source of ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor runs the ingestion pipeline for queue deliveries.
type Processor struct {
	store     Store
	tracer    trace.Tracer
	meter     metric.Meter
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
	metrics   *instruments
}

// NewProcessor creates a Processor. A nil tracer disables tracing.
func NewProcessor(s Store, t trace.Tracer, opts ...Option) *Processor {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("")
	}
	p := &Processor{
		store:     s,
		tracer:    t,
		meter:     noop.Meter{},
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	ins, err := newInstruments(p.meter)
	if err != nil {
		p.logger.Warn("metrics disabled", "error", err)
		ins, _ = newInstruments(noop.Meter{})
	}
	p.metrics = ins
	return p
}

// Handle processes one delivery sub-batch by sub-batch. A failing sub-batch is
// rolled back and its messages are reported in Result.Failed; the remaining
// sub-batches are still processed. The only error returned is the context's,
// when the invocation ends before the delivery is done.
func (p *Processor) Handle(ctx context.Context, msgs []model.RawMessage) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "handle", trace.WithAttributes(
		attribute.Int("messaging.batch.message_count", len(msgs)),
	))
	defer span.End()

	res := Result{Received: len(msgs)}
	p.metrics.received.Add(ctx, int64(len(msgs)))
	p.logger.DebugContext(ctx, "delivery received", "messages", len(msgs))

	index := 0
	for raw := range Split(msgs, p.batchSize) {
		if ctx.Err() != nil {
			for _, m := range raw {
				res.Failed = append(res.Failed, m.MessageID)
			}
			continue
		}
		p.processBatch(ctx, index, raw, &res)
		index++
	}

	p.logger.InfoContext(ctx, "delivery processed",
		"stage", StageDone.String(),
		"received", res.Received,
		"persisted", res.Persisted,
		"duplicates", res.Duplicates,
		"malformed", res.Malformed,
		"failed_batches", res.FailedBatches)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery interrupted")
		return res, fmt.Errorf("delivery interrupted: %w", err)
	}
	return res, nil
}

func (p *Processor) processBatch(ctx context.Context, index int, raw []model.RawMessage, res *Result) {
	ctx, span := p.tracer.Start(ctx, "sub_batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(raw)),
	))
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.duration.Record(ctx, time.Since(start).Seconds()) }()

	p.enter(ctx, span, index, StageExtracting)
	candidates, ids, malformed := p.extract(ctx, raw)
	res.Malformed += malformed
	p.metrics.malformed.Add(ctx, int64(malformed))
	p.countDuplicates(ctx, res, len(raw)-malformed-len(candidates))

	p.enter(ctx, span, index, StageDeduplicating)
	fresh, err := filterNew(ctx, p.store, candidates, ids)
	if err != nil {
		p.fail(ctx, span, index, candidateIDs(candidates), err, res)
		return
	}
	p.countDuplicates(ctx, res, len(candidates)-len(fresh))
	if len(fresh) == 0 {
		p.logger.DebugContext(ctx, "no new log entries", "batch", index)
		p.enter(ctx, span, index, StageCommitted)
		return
	}

	p.enter(ctx, span, index, StagePersisting)
	inserted, err := p.persist(ctx, fresh)
	if errors.Is(err, model.ErrDuplicate) {
		// Another worker committed some of these ids after our lookup.
		p.logger.InfoContext(ctx, "event id conflict, re-checking sub-batch", "batch", index, "error", err)
		var rechecked []model.Candidate
		rechecked, err = filterNew(ctx, p.store, fresh, candidateIDs(fresh))
		if err == nil {
			p.countDuplicates(ctx, res, len(fresh)-len(rechecked))
			fresh = rechecked
			inserted, err = p.persist(ctx, fresh)
		}
	}
	if err != nil {
		p.fail(ctx, span, index, candidateIDs(fresh), err, res)
		return
	}

	res.Persisted += int(inserted)
	p.metrics.persisted.Add(ctx, inserted)
	p.countDuplicates(ctx, res, len(fresh)-int(inserted))
	p.logger.DebugContext(ctx, "processed new log entries", "batch", index, "entries", inserted)
	p.enter(ctx, span, index, StageCommitted)
}

func (p *Processor) fail(ctx context.Context, span trace.Span, index int, ids []string, err error, res *Result) {
	p.enter(ctx, span, index, StageRolledBack)
	span.RecordError(err)
	span.SetStatus(codes.Error, "sub-batch rolled back")
	p.logger.ErrorContext(ctx, "sub-batch rolled back", "batch", index, "messages", len(ids), "error", err)
	res.FailedBatches++
	res.Failed = append(res.Failed, ids...)
	p.metrics.failed.Add(ctx, 1)
}

func (p *Processor) countDuplicates(ctx context.Context, res *Result, n int) {
	if n <= 0 {
		return
	}
	res.Duplicates += n
	p.metrics.duplicate.Add(ctx, int64(n))
}

func (p *Processor) enter(ctx context.Context, span trace.Span, index int, s Stage) {
	span.AddEvent(s.String())
	p.logger.DebugContext(ctx, "sub-batch stage", "batch", index, "stage", s.String())
}
