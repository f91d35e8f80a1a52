package main

import (
	"time"

	"github.com/spf13/cobra"

	"logqueue/internal/queue"
	"logqueue/internal/service"
	"logqueue/internal/telemetry"
)

func newLambdaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function behind an SQS event source",
		Long: `Run as an AWS Lambda function behind an SQS event source.

Enable ReportBatchItemFailures on the event source mapping so that only the
messages of failed sub-batches are redelivered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tel, err := telemetry.Setup(telemetry.Options{})
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := shutdownContext(5 * time.Second)
				defer cancel()
				if err := tel.Shutdown(sctx); err != nil {
					a.logger.Error("error shutting down telemetry", "error", err)
				}
			}()

			// The store lives for the lifetime of the execution environment.
			st, err := newStore(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					a.logger.Error("error closing database", "error", err)
				}
			}()

			proc := service.NewProcessor(st, tel.Tracer, a.processorOptions()...)
			startLambda(queue.NewLambdaHandler(proc, a.logger).Handle)
			return nil
		},
	}
}
