// Package queue connects the ingestion pipeline to Amazon SQS, either through
// the Lambda event source mapping or by long-polling the queue directly.
package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"logqueue/internal/model"
	"logqueue/internal/service"
)

// Handler processes one delivery.
type Handler interface {
	Handle(ctx context.Context, msgs []model.RawMessage) (service.Result, error)
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
// endpoint overrides the service URL, e.g. for a local emulator.
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}
