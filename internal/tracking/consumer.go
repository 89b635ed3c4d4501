package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/bounce-pipeline/internal/domain"
	"github.com/ignite/bounce-pipeline/internal/pkg/logger"
)

// EngagementSink receives the internal counts the consumer produces.
type EngagementSink interface {
	RecordInternal(ctx context.Context, campaignID string, kind domain.EngagementKind) error
}

// sqsReceiver is the slice of the SQS client the consumer uses.
type sqsReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer long-polls the tracking queue and feeds the engagement counters.
type Consumer struct {
	client   sqsReceiver
	queueURL string
	sink     EngagementSink
	done     chan struct{}
}

// NewConsumer creates an SQS tracking consumer.
func NewConsumer(client sqsReceiver, queueURL string, sink EngagementSink) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, sink: sink, done: make(chan struct{})}
}

// Start launches the polling loop.
func (c *Consumer) Start(ctx context.Context) {
	logger.Info("tracking consumer started", "queue", c.queueURL)
	go c.poll(ctx)
}

// Stop halts polling after the current receive returns.
func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("tracking: SQS receive", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, msg := range out.Messages {
			if msg.Body == nil {
				c.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}
			var evt Event
			if err := json.Unmarshal([]byte(*msg.Body), &evt); err != nil {
				logger.Warn("tracking: malformed queue message dropped", "error", err)
				c.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}
			if err := c.processEvent(ctx, evt); err != nil {
				// Left on the queue; SQS redelivers after the visibility
				// timeout.
				logger.Error("tracking: process event", "kind", evt.Kind, "error", err)
				continue
			}
			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Error("tracking: SQS delete", "error", err)
	}
}

func (c *Consumer) processEvent(ctx context.Context, evt Event) error {
	if evt.CampaignID == "" || !evt.Kind.Valid() {
		logger.Warn("tracking: incomplete event dropped",
			"kind", evt.Kind, "campaign_id", evt.CampaignID)
		return nil
	}
	return c.sink.RecordInternal(ctx, evt.CampaignID, evt.Kind)
}
