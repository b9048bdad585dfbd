package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/infrastructure/feed"
)

// NotificationRepo provides typed DynamoDB operations for the notifications
// table. Every write publishes a feed event so live subscribers see new and
// modified notifications without polling.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
	pub       *feed.Publisher
	log       *zap.Logger
}

func NewNotificationRepo(client *dynamodb.Client, tableName string, pub *feed.Publisher, log *zap.Logger) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName, pub: pub, log: log}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	item, err := marshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return err
	}
	r.publish(ctx, feed.EventAdded, n, n.CreatedAt)
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByUser returns a user's notifications newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var notifs []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// ListUnread returns a user's unread notifications newest first.
func (r *NotificationRepo) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("#r = :f"),
		ExpressionAttributeNames: map[string]string{
			"#r": "read",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var notifs []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// ListSince returns a user's notifications created strictly after the given
// time, oldest first. Used by the polling feed fallback.
func (r *NotificationRepo) ListSince(ctx context.Context, userID string, after time.Time) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid AND created_at > :after"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":after": &types.AttributeValueMemberS{Value: formatTime(after)},
		},
	})
	if err != nil {
		return nil, err
	}
	var notifs []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// MarkAsRead flips the read flag and returns the modified record.
func (r *NotificationRepo) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey("notification_id", notificationID),
		UpdateExpression: aws.String("SET #r = :t"),
		ExpressionAttributeNames: map[string]string{
			"#r": "read",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
		ConditionExpression: aws.String("attribute_exists(notification_id)"),
		ReturnValues:        types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
		}
		return nil, err
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Attributes, &n); err != nil {
		return nil, err
	}
	r.publish(ctx, feed.EventModified, &n, time.Now().UTC())
	return &n, nil
}

func (r *NotificationRepo) publish(ctx context.Context, typ feed.EventType, n *domain.Notification, ts time.Time) {
	record, err := feed.MarshalRecord(n)
	if err != nil {
		r.log.Error("notification feed record", zap.String("notification_id", n.NotificationID), zap.Error(err))
		return
	}
	r.pub.Publish(ctx, feed.Event{
		Type:       typ,
		Collection: feed.CollectionNotifications,
		ID:         n.NotificationID,
		UserID:     n.UserID,
		Record:     record,
		Timestamp:  ts,
	})
}
