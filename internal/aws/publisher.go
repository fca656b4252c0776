package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one outgoing queue message.
type Message struct {
	Body       string
	Attributes map[string]string
	// GroupID and DedupID are only sent to FIFO queues.
	GroupID string
	DedupID string
}

// Publisher sends messages to one queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
	fifo     bool
}

// NewPublisher binds client to queueURL. A URL ending in .fifo enables ordered delivery.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// QueueURL returns the target queue.
func (p *Publisher) QueueURL() string { return p.queueURL }

// Publish sends msg. Empty attribute values are dropped since SQS rejects them.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    String(p.queueURL),
		MessageBody: String(msg.Body),
	}
	for k, v := range msg.Attributes {
		if v == "" {
			continue
		}
		if input.MessageAttributes == nil {
			input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{}
		}
		input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
			DataType:    String("String"),
			StringValue: String(v),
		}
	}
	if p.fifo {
		if msg.GroupID == "" {
			return fmt.Errorf("fifo queue %s needs a message group", p.queueURL)
		}
		input.MessageGroupId = String(msg.GroupID)
		if msg.DedupID != "" {
			input.MessageDeduplicationId = String(msg.DedupID)
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
