package queue

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"logqueue/internal/model"
	"logqueue/internal/service"
)

// maxDeleteBatch is the SQS limit on entries per DeleteMessageBatch call.
const maxDeleteBatch = 10

// Client represents the behavior required from an SQS client to receive and
// acknowledge messages.
type Client interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, in *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// ConsumerConfig controls polling.
type ConsumerConfig struct {
	QueueURL          string
	MaxMessages       int32
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	Pollers           int
	ErrorBackoff      time.Duration
	DeleteTimeout     time.Duration
}

// Consumer polls SQS and feeds each receive as one delivery to the handler.
type Consumer struct {
	client  Client
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

// NewConsumer creates a new Consumer. A nil logger uses slog.Default().
func NewConsumer(client Client, h Handler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.MaxMessages < 1 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = 10
	}
	if cfg.Pollers < 1 {
		cfg.Pollers = 1
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, handler: h, cfg: cfg, logger: logger}
}

// Start runs the pollers until the context is cancelled. Each poller is an
// independent worker processing one delivery at a time.
func (c *Consumer) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range c.cfg.Pollers {
		g.Go(func() error { return c.poll(ctx, i) })
	}
	return g.Wait()
}

func (c *Consumer) poll(ctx context.Context, poller int) error {
	logger := c.logger.With("poller", poller)
	logger.Info("polling queue", "queue_url", c.cfg.QueueURL)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.cfg.QueueURL),
			MaxNumberOfMessages: c.cfg.MaxMessages,
			WaitTimeSeconds:     int32(c.cfg.WaitTime / time.Second),
			VisibilityTimeout:   int32(c.cfg.VisibilityTimeout / time.Second),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ErrorBackoff):
			}
			continue
		}
		if len(out.Messages) == 0 {
			continue
		}
		c.deliver(ctx, logger.With("delivery_id", uuid.NewString()), out.Messages)
	}
}

// deliver hands msgs to the handler and deletes every message that does not
// need redelivery. Failed messages become visible again once their
// visibility timeout expires.
func (c *Consumer) deliver(ctx context.Context, logger *slog.Logger, msgs []types.Message) {
	raw := make([]model.RawMessage, len(msgs))
	for i, m := range msgs {
		raw[i] = model.RawMessage{MessageID: aws.ToString(m.MessageId), Body: aws.ToString(m.Body)}
	}

	res, err := c.handler.Handle(ctx, raw)
	if err != nil {
		logger.Error("delivery interrupted", "error", err)
	}
	failed := make(map[string]struct{}, len(res.Failed))
	for _, id := range res.Failed {
		failed[id] = struct{}{}
	}

	entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(msgs))
	for i, m := range msgs {
		if _, ok := failed[aws.ToString(m.MessageId)]; ok {
			continue
		}
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: m.ReceiptHandle,
		})
	}

	// Acknowledge what was handled even when shutdown has begun.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DeleteTimeout)
	defer cancel()
	for chunk := range service.Split(entries, maxDeleteBatch) {
		out, err := c.client.DeleteMessageBatch(dctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(c.cfg.QueueURL),
			Entries:  chunk,
		})
		if err != nil {
			logger.Error("delete messages failed", "messages", len(chunk), "error", err)
			continue
		}
		for _, f := range out.Failed {
			logger.Warn("delete message failed", "entry", aws.ToString(f.Id), "code", aws.ToString(f.Code), "error", aws.ToString(f.Message))
		}
	}
	logger.Debug("delivery acknowledged", "deleted", len(entries), "kept", len(msgs)-len(entries))
}
