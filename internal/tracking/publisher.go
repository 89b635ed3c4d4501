// Package tracking serves the open pixel and click redirect, and moves the
// hits through SQS to the engagement counters. These are the
// internally-observed counts the reconciler holds provider reports against.
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

// Event is one tracked interaction on the wire between the HTTP handler
// and the consumer.
type Event struct {
	Kind       domain.EngagementKind `json:"kind"`
	CampaignID string                `json:"campaign_id"`
	Email      string                `json:"email,omitempty"`
	LinkURL    string                `json:"link_url,omitempty"`
	IPAddress  string                `json:"ip_address"`
	UserAgent  string                `json:"user_agent"`
	Timestamp  time.Time             `json:"timestamp"`
}

// sqsSender is the slice of the SQS client the publisher uses.
type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher pushes tracking events onto SQS. Publishing is fire-and-forget;
// the HTTP handler must answer in pixel time regardless of queue health.
type Publisher struct {
	client   sqsSender
	queueURL string
}

// NewPublisher creates an SQS tracking publisher.
func NewPublisher(client sqsSender, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Publish queues an event without blocking the caller.
func (p *Publisher) Publish(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		logger.Error("tracking: marshal event", "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			logger.Error("tracking: publish to SQS", "kind", evt.Kind, "error", err)
		}
	}()
}
