package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// AttrEventType carries the event name on every published message.
const AttrEventType = "event_type"

// ErrNoQueue is returned when the publisher has no queue configured.
var ErrNoQueue = errors.New("publisher: no queue url configured")

// Publisher sends JSON events to one SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish marshals payload and sends it with eventType and attributes as
// string message attributes.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any, attributes map[string]string) error {
	if p == nil || p.SQS == nil || p.QueueURL == "" {
		return ErrNoQueue
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msgAttrs := map[string]sqstypes.MessageAttributeValue{
		AttrEventType: {DataType: sdkaws.String("String"), StringValue: sdkaws.String(eventType)},
	}
	for k, v := range attributes {
		if v == "" {
			continue
		}
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    sdkaws.String("String"),
			StringValue: sdkaws.String(v),
		}
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       sdkaws.String(string(body)),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
