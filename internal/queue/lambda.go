package queue

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"logqueue/internal/model"
)

// LambdaHandler adapts a Handler to the Lambda SQS event source. It reports
// failed sub-batches as batch item failures, which requires
// ReportBatchItemFailures on the event source mapping.
type LambdaHandler struct {
	handler Handler
	logger  *slog.Logger
}

// NewLambdaHandler creates a LambdaHandler. A nil logger uses slog.Default().
func NewLambdaHandler(h Handler, logger *slog.Logger) *LambdaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LambdaHandler{handler: h, logger: logger}
}

// Handle is the Lambda entry point.
func (l *LambdaHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	logger := l.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}
	logger.DebugContext(ctx, "function triggered", "records", len(ev.Records))

	raw := make([]model.RawMessage, len(ev.Records))
	for i, r := range ev.Records {
		raw[i] = model.RawMessage{MessageID: r.MessageId, Body: r.Body}
	}

	res, err := l.handler.Handle(ctx, raw)
	var resp events.SQSEventResponse
	for _, id := range res.Failed {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}
	if err != nil {
		logger.ErrorContext(ctx, "invocation ended before delivery was processed", "error", err)
		return resp, err
	}
	return resp, nil
}
