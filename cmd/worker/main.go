package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"logqueue/internal/config"
	"logqueue/internal/model"
	"logqueue/internal/queue"
	"logqueue/internal/service"
	"logqueue/internal/store"
)

type pipelineStore interface {
	service.Store
	EnsureSchema(ctx context.Context) error
	Recent(ctx context.Context, limit int) ([]model.LogEntry, error)
	Close() error
}

type consumer interface {
	Start(ctx context.Context) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, message string, level model.Level) (string, error)
}

// Constructors are variables so tests can swap in fakes.
var (
	newStore = func(ctx context.Context, cfg config.Config, logger *slog.Logger) (pipelineStore, error) {
		d, err := store.ParseDialect(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		st, err := store.Open(ctx, d, cfg.DatabaseDSN(), store.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.CreateSchema {
			if err := st.EnsureSchema(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
		return st, nil
	}

	newConsumer = func(ctx context.Context, cfg config.Config, h queue.Handler, logger *slog.Logger) (consumer, error) {
		client, err := queue.NewSQSClient(ctx, cfg.Queue.Region, cfg.Queue.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return queue.NewConsumer(client, h, queue.ConsumerConfig{
			QueueURL:          cfg.Queue.URL,
			MaxMessages:       cfg.Queue.MaxMessages,
			WaitTime:          cfg.Queue.WaitTime,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			Pollers:           cfg.Worker.Pollers,
		}, logger), nil
	}

	newProducer = func(ctx context.Context, cfg config.Config) (enqueuer, error) {
		client, err := queue.NewSQSClient(ctx, cfg.Queue.Region, cfg.Queue.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		return queue.NewProducer(client, cfg.Queue.URL), nil
	}

	startLambda = lambda.Start
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

// app carries what every command needs after flags are parsed.
type app struct {
	configPath string
	verbose    bool
	logFormat  string

	driver       string
	dsn          string
	batchSize    int
	createSchema bool
	queueURL     string
	pollers      int
	metrics      bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Idempotent log ingestion worker",
		Long:          "Consumes log records from SQS and persists each queue message exactly once.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "path to YAML config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&a.logFormat, "log-format", "", "log format (text|json)")
	pf.StringVar(&a.driver, "driver", "", "database driver (postgres|sqlite)")
	pf.StringVar(&a.dsn, "dsn", "", "database connection string")
	pf.IntVar(&a.batchSize, "batch-size", 0, "records per persistence transaction")
	pf.BoolVar(&a.createSchema, "create-schema", false, "create the log_entries table if missing")
	pf.StringVar(&a.queueURL, "queue-url", "", "SQS queue URL")

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newLambdaCommand(a))
	cmd.AddCommand(newEnqueueCommand(a))
	cmd.AddCommand(newSchemaCommand(a))
	cmd.AddCommand(newRecentCommand(a))

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("driver") {
		cfg.Database.Driver = a.driver
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = a.dsn
	}
	if flags.Changed("batch-size") {
		cfg.Worker.BatchSize = a.batchSize
	}
	if flags.Changed("create-schema") {
		cfg.Database.CreateSchema = a.createSchema
	}
	if flags.Changed("queue-url") {
		cfg.Queue.URL = a.queueURL
	}
	if flags.Changed("pollers") {
		cfg.Worker.Pollers = a.pollers
	}
	if flags.Changed("metrics") {
		cfg.Telemetry.Metrics = a.metrics
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (a *app) processorOptions(extra ...service.Option) []service.Option {
	return append([]service.Option{
		service.WithLogger(a.logger),
		service.WithBatchSize(a.cfg.Worker.BatchSize),
	}, extra...)
}

func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
