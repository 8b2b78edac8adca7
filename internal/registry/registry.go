// Package registry records which subscribers have already been welcomed, so
// a redelivered event does not send a second mail.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrAlreadySent = errors.New("welcome mail already sent")

// API is the subset of *dynamodb.Client the registry needs.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type Registry struct {
	api       API
	tableName string
	now       func() time.Time
}

func New(api API, tableName string) *Registry {
	return &Registry{api: api, tableName: tableName, now: time.Now}
}

// MarkSent claims email. It returns ErrAlreadySent when another delivery
// claimed it first.
func (r *Registry) MarkSent(ctx context.Context, email, subscriptionID string) error {
	item := map[string]types.AttributeValue{
		"email":          &types.AttributeValueMemberS{Value: normalize(email)}, // Partition Key
		"subscriptionId": &types.AttributeValueMemberS{Value: subscriptionID},
		"sentAt":         &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339)},
	}

	_, err := r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(email)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadySent
		}
		return fmt.Errorf("mark %s sent: %w", r.tableName, err)
	}
	return nil
}

// Unmark releases a claim so the next delivery can retry the send.
func (r *Registry) Unmark(ctx context.Context, email string) error {
	_, err := r.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: normalize(email)},
		},
	})
	if err != nil {
		return fmt.Errorf("unmark %s: %w", r.tableName, err)
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
