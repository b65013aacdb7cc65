package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"memoryengine/internal/apperrors"
)

// l2Item mirrors the teacher's ddbIdempotencyItem shape (PK/SK/TTL), here
// holding an opaque cache payload instead of an idempotency result.
type l2Item struct {
	PK    string `dynamodbav:"PK"`
	Value []byte `dynamodbav:"Value"`
	TTL   int64  `dynamodbav:"TTL"`
}

// L2DynamoDB is a shared, cross-node Tier backed by DynamoDB's native TTL
// attribute for expiry, grounded on the teacher's
// infrastructure/dynamodb/idempotency.go PutItem/GetItem/DeleteItem
// pattern, repurposed from idempotency bookkeeping to general cache
// storage now that relational persistence lives in internal/storage.
type L2DynamoDB struct {
	client    *dynamodb.Client
	tableName string
}

// NewL2DynamoDB builds an L2 tier against an existing table with a string
// partition key "PK" and a numeric TTL attribute named "TTL".
func NewL2DynamoDB(client *dynamodb.Client, tableName string) *L2DynamoDB {
	return &L2DynamoDB{client: client, tableName: tableName}
}

func (l *L2DynamoDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, apperrors.Transient("cache", "l2_get", "dynamodb get item failed", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	var item l2Item
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, apperrors.Internal("cache", "l2_get", "unmarshal cache item", err)
	}
	if item.TTL > 0 && time.Now().Unix() > item.TTL {
		return nil, false, nil
	}
	return item.Value, true, nil
}

func (l *L2DynamoDB) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := l2Item{PK: key, Value: value, TTL: time.Now().Add(ttl).Unix()}
	itemMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return apperrors.Internal("cache", "l2_set", "marshal cache item", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item:      itemMap,
	})
	if err != nil {
		return apperrors.Transient("cache", "l2_set", "dynamodb put item failed", err)
	}
	return nil
}

func (l *L2DynamoDB) Delete(ctx context.Context, key string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return nil
		}
		return apperrors.Transient("cache", "l2_delete", "dynamodb delete item failed", err)
	}
	return nil
}

// Clear scans the table and deletes every item whose PK matches prefix.
// DynamoDB has no native prefix-delete, so this is a scan-then-batch-
// delete whose cost grows with the table size, which nothing in this
// package bounds; a production table large enough to make
// this expensive would instead rely on TTL expiry rather than explicit
// Clear calls.
func (l *L2DynamoDB) Clear(ctx context.Context, prefix string) error {
	var startKey map[string]types.AttributeValue
	for {
		out, err := l.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(l.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return apperrors.Transient("cache", "l2_clear", "dynamodb scan failed", err)
		}

		var writeRequests []types.WriteRequest
		for _, attrs := range out.Items {
			var item l2Item
			if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
				continue
			}
			if prefix != "*" && !strings.HasPrefix(item.PK, prefix) {
				continue
			}
			writeRequests = append(writeRequests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: item.PK},
					},
				},
			})
		}

		if len(writeRequests) > 0 {
			if _, err := l.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{l.tableName: writeRequests},
			}); err != nil {
				return apperrors.Transient("cache", "l2_clear", "dynamodb batch delete failed", err)
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// Count returns the approximate entry count via DynamoDB's table
// description (eventually consistent, updated roughly every six hours by
// AWS, sufficient for approximate monitoring).
func (l *L2DynamoDB) Count(ctx context.Context) (int64, error) {
	out, err := l.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(l.tableName),
	})
	if err != nil {
		return 0, apperrors.Transient("cache", "l2_count", "dynamodb describe table failed", err)
	}
	if out.Table == nil || out.Table.ItemCount == nil {
		return 0, nil
	}
	return *out.Table.ItemCount, nil
}
