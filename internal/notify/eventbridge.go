// Package notify announces recorded subscriptions on an EventBridge bus so
// that downstream functions can react to them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/eventbridge"
	"github.com/aws/aws-sdk-go/service/eventbridge/eventbridgeiface"
)

const (
	Source     = "newsletter.ledger"
	DetailType = "SubscriptionRecorded"
)

// Subscription is the detail of a SubscriptionRecorded event.
type Subscription struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

// EventBridgePublisher puts one event per subscription on a bus.
type EventBridgePublisher struct {
	client  eventbridgeiface.EventBridgeAPI
	busName string
}

func NewEventBridgePublisher(client eventbridgeiface.EventBridgeAPI, busName string) *EventBridgePublisher {
	return &EventBridgePublisher{client: client, busName: busName}
}

func (p *EventBridgePublisher) Publish(ctx context.Context, sub Subscription) error {
	detail, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription event: %w", err)
	}

	out, err := p.client.PutEventsWithContext(ctx, &eventbridge.PutEventsInput{
		Entries: []*eventbridge.PutEventsRequestEntry{{
			Source:       aws.String(Source),
			DetailType:   aws.String(DetailType),
			Detail:       aws.String(string(detail)),
			EventBusName: aws.String(p.busName),
			Time:         aws.Time(sub.SubscribedAt),
		}},
	})
	if err != nil {
		return fmt.Errorf("put subscription event: %w", err)
	}

	if aws.Int64Value(out.FailedEntryCount) > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				return fmt.Errorf("put subscription event: %s: %s",
					aws.StringValue(entry.ErrorCode), aws.StringValue(entry.ErrorMessage))
			}
		}
		return fmt.Errorf("put subscription event: %d entries failed", aws.Int64Value(out.FailedEntryCount))
	}

	return nil
}

// ParseSubscription decodes the detail of a SubscriptionRecorded event.
func ParseSubscription(detail []byte) (Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(detail, &sub); err != nil {
		return Subscription{}, fmt.Errorf("decode subscription event: %w", err)
	}
	if sub.Email == "" {
		return Subscription{}, fmt.Errorf("decode subscription event: email is empty")
	}
	return sub, nil
}
