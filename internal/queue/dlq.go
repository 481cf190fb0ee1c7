// Package queue provides the SQS-based dead-letter forwarder for push
// messages that exhausted their delivery retries.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"fraudwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// FailedDeliveryMessage is the JSON body placed on the dead-letter queue.
type FailedDeliveryMessage struct {
	MessageID string      `json:"message_id"`
	SessionID string      `json:"session_id"`
	CardToken string      `json:"card_token"`
	Alert     types.Alert `json:"alert"`
	Attempts  int         `json:"attempts"`
	Reason    string      `json:"reason"`
	FailedAt  time.Time   `json:"failed_at"`
}

// DeadLetterQueue forwards permanently failed push messages to SQS so an
// operator (or a replay tool) can inspect what consumers missed. In-memory
// delivery state is gone once a message is dropped; the queue entry is the
// only remaining trace.
type DeadLetterQueue struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   types.Logger
}

// NewDeadLetterQueue creates a forwarder publishing to the given queue URL.
func NewDeadLetterQueue(client SQSSender, queueURL string, clock types.Clock, logger types.Logger) *DeadLetterQueue {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &DeadLetterQueue{
		client:   client,
		queueURL: queueURL,
		clock:    clock,
		logger:   logger,
	}
}

// PublishFailedDelivery serializes the dropped message and sends it to the
// dead-letter queue with an EventType message attribute for consumer-side
// filtering.
func (d *DeadLetterQueue) PublishFailedDelivery(ctx context.Context, msg types.PushMessage, attempts int, reason string) error {
	body, err := json.Marshal(FailedDeliveryMessage{
		MessageID: msg.MessageID,
		SessionID: msg.SessionID,
		CardToken: msg.CardToken,
		Alert:     msg.Alert,
		Attempts:  attempts,
		Reason:    reason,
		FailedAt:  d.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("PublishFailedDelivery: marshal: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			types.DimEventType: {
				DataType:    aws.String("String"),
				StringValue: aws.String("delivery_failed"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("PublishFailedDelivery: send: %w", err)
	}

	d.logger.Info("dead-letter message published",
		"message_id", msg.MessageID,
		"session_id", msg.SessionID,
		"attempts", attempts,
	)

	return nil
}
