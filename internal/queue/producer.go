package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"logqueue/internal/model"
)

// Sender is the subset of the SQS API the producer needs.
type Sender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Producer places log records on the queue. The event id of a record is
// assigned by the queue, never by the producer.
type Producer struct {
	client   Sender
	queueURL string
}

// NewProducer creates a Producer for queueURL.
func NewProducer(client Sender, queueURL string) *Producer {
	return &Producer{client: client, queueURL: queueURL}
}

type payload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// Enqueue serializes the record and sends it, returning the queue-assigned
// message id.
func (p *Producer) Enqueue(ctx context.Context, message string, level model.Level) (string, error) {
	if !level.Valid() {
		return "", fmt.Errorf("enqueue: %w: unknown level %q", model.ErrMalformed, level)
	}
	body, err := json.Marshal(payload{Message: message, Level: string(level)})
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", fmt.Errorf("error occurred while sending message to SQS: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
