package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"logqueue/internal/service"
	"logqueue/internal/telemetry"
)

func newServeCommand(a *app) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Long-poll the queue and ingest deliveries until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a, shutdownTimeout)
		},
	}
	cmd.Flags().IntVar(&a.pollers, "pollers", 0, "number of concurrent pollers")
	cmd.Flags().BoolVar(&a.metrics, "metrics", false, "export metrics to stdout")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "time allowed for flushing telemetry and closing the store")
	return cmd
}

func runServe(parent context.Context, a *app, shutdownTimeout time.Duration) error {
	if a.cfg.Queue.URL == "" {
		return errors.New("queue url is required (--queue-url or QUEUE_URL)")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(telemetry.Options{
		Metrics:  a.cfg.Telemetry.Metrics,
		Interval: a.cfg.Telemetry.MetricInterval,
		Writer:   os.Stdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := shutdownContext(shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			a.logger.Error("error shutting down telemetry", "error", err)
		}
	}()

	st, err := newStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.logger.Error("error closing database", "error", err)
		}
	}()

	proc := service.NewProcessor(st, tel.Tracer, a.processorOptions(service.WithMeter(tel.Meter))...)
	c, err := newConsumer(ctx, a.cfg, proc, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info("worker starting", "queue_url", a.cfg.Queue.URL, "batch_size", a.cfg.Worker.BatchSize, "pollers", a.cfg.Worker.Pollers)
	if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("worker stopped gracefully")
	return nil
}
