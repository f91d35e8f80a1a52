package service

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	received  metric.Int64Counter
	malformed metric.Int64Counter
	duplicate metric.Int64Counter
	persisted metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		ins  instruments
		err  error
		errs []error
	)
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	ins.received = counter("logqueue.messages.received", "Queue messages handed to the pipeline.", "{message}")
	ins.malformed = counter("logqueue.messages.malformed", "Messages dropped because their body was invalid.", "{message}")
	ins.duplicate = counter("logqueue.messages.duplicate", "Messages whose event id was already persisted.", "{message}")
	ins.persisted = counter("logqueue.messages.persisted", "Log entries committed to the store.", "{message}")
	ins.failed = counter("logqueue.batches.failed", "Sub-batches rolled back.", "{batch}")
	ins.duration, err = m.Float64Histogram("logqueue.batch.duration",
		metric.WithDescription("Time spent processing one sub-batch."),
		metric.WithUnit("s"))
	errs = append(errs, err)
	return &ins, errors.Join(errs...)
}
