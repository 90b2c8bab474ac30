// Package firehose delivers events to an Amazon Kinesis Data Firehose
// stream instead of an HTTP endpoint. It is an alternate Sender for
// deployments that archive the event feed rather than call webhooks.
package firehose

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	fh "github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"

	"github.com/hooklab/emitter/delivery"
)

// Config configures the Firehose sender.
type Config struct {
	// StreamName is the delivery stream events are written to. Required.
	StreamName string

	// Region overrides the region from the AWS default credential chain.
	Region string
}

// putRecordAPI is the slice of the Firehose client the sender uses.
type putRecordAPI interface {
	PutRecord(ctx context.Context, in *fh.PutRecordInput, opts ...func(*fh.Options)) (*fh.PutRecordOutput, error)
}

// Sender writes each event payload as one Firehose record. Records are
// newline-terminated so stream consumers can split concatenated batches.
type Sender struct {
	client putRecordAPI
	config Config
}

// New creates a Firehose sender using the AWS default credential chain.
func New(ctx context.Context, cfg Config) (*Sender, error) {
	if cfg.StreamName == "" {
		return nil, fmt.Errorf("firehose: stream name is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("firehose: load AWS config: %w", err)
	}

	return &Sender{
		client: fh.NewFromConfig(awsCfg),
		config: cfg,
	}, nil
}

// NewWithClient creates a sender around an existing client. Used by tests.
func NewWithClient(client putRecordAPI, cfg Config) (*Sender, error) {
	if cfg.StreamName == "" {
		return nil, fmt.Errorf("firehose: stream name is required")
	}
	return &Sender{client: client, config: cfg}, nil
}

// Send implements delivery.Sender. Firehose failures are retryable; the
// scheduler applies the task's backoff policy as it would for HTTP.
func (s *Sender) Send(ctx context.Context, task *delivery.Task) delivery.Result {
	start := time.Now()

	data := make([]byte, 0, len(task.Payload)+1)
	data = append(data, task.Payload...)
	data = append(data, '\n')

	_, err := s.client.PutRecord(ctx, &fh.PutRecordInput{
		DeliveryStreamName: aws.String(s.config.StreamName),
		Record:             &types.Record{Data: data},
	})
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return delivery.Result{
			Error:     fmt.Sprintf("firehose put record: %v", err),
			LatencyMs: latency,
		}
	}

	return delivery.Result{
		StatusCode: http.StatusOK,
		LatencyMs:  latency,
	}
}
