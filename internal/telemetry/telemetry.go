// Package telemetry sets up OpenTelemetry tracing and metrics for the worker.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const scope = "logqueue"

// Options configures Setup.
type Options struct {
	// Metrics enables periodic metric export to Writer.
	Metrics  bool
	Interval time.Duration
	Writer   io.Writer
}

// Providers bundles the tracer and meter used by the pipeline.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Setup builds the providers.
func Setup(opts Options) (*Providers, error) {
	tp := sdktrace.NewTracerProvider()
	p := &Providers{
		Tracer: tp.Tracer(scope),
		Meter:  noop.NewMeterProvider().Meter(scope),
		tp:     tp,
	}
	if !opts.Metrics {
		return p, nil
	}

	var exOpts []stdoutmetric.Option
	if opts.Writer != nil {
		exOpts = append(exOpts, stdoutmetric.WithWriter(opts.Writer))
	}
	exp, err := stdoutmetric.New(exOpts...)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	var readerOpts []sdkmetric.PeriodicReaderOption
	if opts.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(opts.Interval))
	}
	p.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)))
	p.Meter = p.mp.Meter(scope)
	return p, nil
}

// Shutdown flushes and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	errs := []error{p.tp.Shutdown(ctx)}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
