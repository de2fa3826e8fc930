// Package dynamo provides the DynamoDB RecordStore used when multiple
// instances must share verification state.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/phonegate/phonegate/internal/store"
	"github.com/sirupsen/logrus"
)

// Store keeps one item per phone number under PK=VERIFY#<phone>, SK=METADATA.
// The table's native TTL attribute evicts expired items; Get still returns
// items past ExpiresAt until DynamoDB reclaims them, so callers check expiry.
type Store struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func New(client *dynamodb.Client, tableName string, logger *logrus.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func pk(phoneNumber string) string {
	return "VERIFY#" + phoneNumber
}

func key(phoneNumber string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk(phoneNumber)},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

func (s *Store) Put(ctx context.Context, rec store.Record) error {
	item := map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: pk(rec.PhoneNumber)},
		"SK":          &types.AttributeValueMemberS{Value: "METADATA"},
		"PhoneNumber": &types.AttributeValueMemberS{Value: rec.PhoneNumber},
		"CodeHash":    &types.AttributeValueMemberS{Value: rec.CodeHash},
		"IssuingIP":   &types.AttributeValueMemberS{Value: rec.IssuingIP},
		"Attempts":    &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Attempts)},
		"CreatedAt":   &types.AttributeValueMemberS{Value: rec.CreatedAt.Format(time.RFC3339)},
		"ExpiresAt":   &types.AttributeValueMemberS{Value: rec.ExpiresAt.Format(time.RFC3339)},
		"TTL":         &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt.Unix(), 10)},
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to store verification record in DynamoDB")
		return fmt.Errorf("%w: put record: %v", store.ErrUnavailable, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, phoneNumber string) (store.Record, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(phoneNumber),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to get verification record from DynamoDB")
		return store.Record{}, false, fmt.Errorf("%w: get record: %v", store.ErrUnavailable, err)
	}

	if result.Item == nil {
		return store.Record{}, false, nil
	}

	var rec store.Record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return store.Record{}, false, fmt.Errorf("%w: unmarshal record: %v", store.ErrUnavailable, err)
	}

	return rec, true, nil
}

// IncrementAttempts is a server-side atomic ADD; two concurrent calls can
// never observe the same counter value.
func (s *Store) IncrementAttempts(ctx context.Context, phoneNumber string) (int, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 key(phoneNumber),
		UpdateExpression:    aws.String("ADD Attempts :one"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, store.ErrNotFound
		}
		s.logger.WithError(err).Error("Failed to increment verification attempts in DynamoDB")
		return 0, fmt.Errorf("%w: increment attempts: %v", store.ErrUnavailable, err)
	}

	attr, ok := result.Attributes["Attempts"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected Attempts attribute %T", store.ErrUnavailable, result.Attributes["Attempts"])
	}

	attempts, err := strconv.Atoi(attr.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: parse Attempts %q: %v", store.ErrUnavailable, attr.Value, err)
	}

	return attempts, nil
}

func (s *Store) Delete(ctx context.Context, phoneNumber string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(phoneNumber),
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to delete verification record from DynamoDB")
		return fmt.Errorf("%w: delete record: %v", store.ErrUnavailable, err)
	}

	return nil
}
