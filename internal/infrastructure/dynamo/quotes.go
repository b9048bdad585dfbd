package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/infrastructure/feed"
)

// QuoteRepo provides typed DynamoDB operations for the quotes table and
// publishes a feed event after every successful write.
type QuoteRepo struct {
	client    *dynamodb.Client
	tableName string
	pub       *feed.Publisher
	log       *zap.Logger
}

func NewQuoteRepo(client *dynamodb.Client, tableName string, pub *feed.Publisher, log *zap.Logger) *QuoteRepo {
	return &QuoteRepo{client: client, tableName: tableName, pub: pub, log: log}
}

func (r *QuoteRepo) Put(ctx context.Context, q *domain.Quote) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	item, err := marshalMap(q)
	if err != nil {
		return fmt.Errorf("marshal quote: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return err
	}
	r.publish(ctx, feed.EventAdded, q)
	return nil
}

func (r *QuoteRepo) Get(ctx context.Context, quoteID string) (*domain.Quote, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("quote_id", quoteID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("quote %s: %w", quoteID, domain.ErrNotFound)
	}
	var q domain.Quote
	if err := attributevalue.UnmarshalMap(out.Item, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Update applies a partial update and returns the modified record, so the
// feed event carries the full document rather than just the changed fields.
func (r *QuoteRepo) Update(ctx context.Context, quoteID string, updates map[string]interface{}) (*domain.Quote, error) {
	updates["updated_at"] = formatTime(time.Now())
	expr, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("quote_id", quoteID),
		UpdateExpression:          aws.String(expr.Expr),
		ExpressionAttributeNames:  expr.Names,
		ExpressionAttributeValues: expr.Values,
		ConditionExpression:       aws.String("attribute_exists(quote_id)"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("quote %s: %w", quoteID, domain.ErrNotFound)
		}
		return nil, err
	}
	var q domain.Quote
	if err := attributevalue.UnmarshalMap(out.Attributes, &q); err != nil {
		return nil, err
	}
	r.publish(ctx, feed.EventModified, &q)
	return &q, nil
}

func (r *QuoteRepo) Delete(ctx context.Context, quoteID string) error {
	q, err := r.Get(ctx, quoteID)
	if err != nil {
		return err
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("quote_id", quoteID),
	})
	if err != nil {
		return err
	}
	r.publish(ctx, feed.EventRemoved, q)
	return nil
}

// ListByUser returns a user's quotes newest first.
func (r *QuoteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Quote, error) {
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
	var quotes []domain.Quote
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// ListAll returns every quote newest first. Scan order is undefined, so the
// result is sorted after unmarshal.
func (r *QuoteRepo) ListAll(ctx context.Context) ([]domain.Quote, error) {
	var quotes []domain.Quote
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.Quote
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		quotes = append(quotes, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].CreatedAt.After(quotes[j].CreatedAt)
	})
	return quotes, nil
}

func (r *QuoteRepo) publish(ctx context.Context, typ feed.EventType, q *domain.Quote) {
	record, err := feed.MarshalRecord(q)
	if err != nil {
		r.log.Error("quote feed record", zap.String("quote_id", q.QuoteID), zap.Error(err))
		return
	}
	r.pub.Publish(ctx, feed.Event{
		Type:       typ,
		Collection: feed.CollectionQuotes,
		ID:         q.QuoteID,
		UserID:     q.UserID,
		Record:     record,
		Timestamp:  q.UpdatedAt,
	})
}
