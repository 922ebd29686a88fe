package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
)

const (
	attrID       = "record_id"
	attrData     = "data"
	attrIP       = "ip"
	attrPassword = "password"
	attrExpiry   = "expiredTime"
	attrTTL      = "ttl"
	attrDeadline = "deadline_ms"
)

// DynamoDBAPI defines the interface for DynamoDB operations we use
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps records as items whose "ttl" attribute holds the epoch
// second, rounded up, at which DynamoDB's TTL process may delete them. That
// process is lazy, so reads filter on the exact "deadline_ms" attribute.
type DynamoStore struct {
	client DynamoDBAPI
	table  string
	now    func() time.Time
}

func NewDynamoStore(ctx context.Context, region, table string) (*DynamoStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &DynamoStore{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
		now:    time.Now,
	}, nil
}

func (d *DynamoStore) key(id string) map[string]dynamotypes.AttributeValue {
	return map[string]dynamotypes.AttributeValue{
		attrID: &dynamotypes.AttributeValueMemberS{Value: id},
	}
}

func (d *DynamoStore) Set(ctx context.Context, id string, rec *storagetypes.Record, ttl time.Duration) error {
	deadline := storagetypes.DeadlineMillis(d.now(), ttl)
	item := map[string]dynamotypes.AttributeValue{
		attrID:       &dynamotypes.AttributeValueMemberS{Value: id},
		attrData:     &dynamotypes.AttributeValueMemberS{Value: rec.Data},
		attrIP:       &dynamotypes.AttributeValueMemberS{Value: rec.IPRule},
		attrExpiry:   &dynamotypes.AttributeValueMemberN{Value: strconv.FormatInt(rec.Expiry, 10)},
		attrTTL:      &dynamotypes.AttributeValueMemberN{Value: strconv.FormatInt((deadline+999)/1000, 10)},
		attrDeadline: &dynamotypes.AttributeValueMemberN{Value: strconv.FormatInt(deadline, 10)},
	}
	if rec.Password != "" {
		item[attrPassword] = &dynamotypes.AttributeValueMemberS{Value: rec.Password}
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store record in DynamoDB: %w", err)
	}
	return nil
}

func (d *DynamoStore) Get(ctx context.Context, id string) (*storagetypes.Record, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       d.key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, storagetypes.ErrNotFound
	}

	if deadlineReached(result.Item, d.now()) {
		return nil, storagetypes.ErrNotFound
	}

	data, ok := result.Item[attrData].(*dynamotypes.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("data field not found")
	}

	rec := &storagetypes.Record{
		Data:     data.Value,
		IPRule:   stringAttr(result.Item, attrIP),
		Password: stringAttr(result.Item, attrPassword),
	}
	rec.Expiry, _ = numberAttr(result.Item, attrExpiry)
	return rec, nil
}

func (d *DynamoStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(d.table),
		Key:          d.key(id),
		ReturnValues: dynamotypes.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete record from DynamoDB: %w", err)
	}
	return len(result.Attributes) > 0, nil
}

// Count reports DynamoDB's item count, which the service refreshes about
// every six hours.
func (d *DynamoStore) Count(ctx context.Context) (int64, bool, error) {
	result, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to describe DynamoDB table: %w", err)
	}
	if result.Table == nil || result.Table.ItemCount == nil {
		return 0, false, nil
	}
	return *result.Table.ItemCount, true, nil
}

func (d *DynamoStore) Keys(ctx context.Context, fn func(key string) error) error {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:            aws.String(d.table),
		ProjectionExpression: aws.String(attrID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan DynamoDB table: %w", err)
		}
		for _, item := range page.Items {
			if id := stringAttr(item, attrID); id != "" {
				if err := fn(id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// deadlineReached prefers the millisecond deadline and falls back to the
// TTL attribute for items that lack it.
func deadlineReached(item map[string]dynamotypes.AttributeValue, now time.Time) bool {
	if deadline, ok := numberAttr(item, attrDeadline); ok {
		return storagetypes.Reached(deadline, now)
	}
	if ttl, ok := numberAttr(item, attrTTL); ok {
		return ttl <= now.Unix()
	}
	return false
}

func stringAttr(item map[string]dynamotypes.AttributeValue, name string) string {
	if v, ok := item[name].(*dynamotypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numberAttr(item map[string]dynamotypes.AttributeValue, name string) (int64, bool) {
	v, ok := item[name].(*dynamotypes.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
