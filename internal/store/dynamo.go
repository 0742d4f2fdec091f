package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoBackend.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// KeySchema names the key attributes of a DynamoDB table.
type KeySchema struct {
	Partition string
	Sort      string
}

var (
	// ProductsSchema is the key schema of the Products table.
	ProductsSchema = KeySchema{Partition: "id"}
	// CompositeSchema is the pk/sk schema of the Orders and Events tables.
	CompositeSchema = KeySchema{Partition: "pk", Sort: "sk"}
)

const (
	batchGetLimit    = 100
	batchGetAttempts = 5
)

// DynamoBackend stores records as DynamoDB items using dynamodbav tags.
type DynamoBackend[T any] struct {
	client DynamoAPI
	table  string
	schema KeySchema
}

func NewDynamoBackend[T any](client DynamoAPI, table string, schema KeySchema) *DynamoBackend[T] {
	return &DynamoBackend[T]{client: client, table: table, schema: schema}
}

func (b *DynamoBackend[T]) key(k Key) map[string]types.AttributeValue {
	m := map[string]types.AttributeValue{
		b.schema.Partition: &types.AttributeValueMemberS{Value: k.PK},
	}
	if b.schema.Sort != "" {
		m[b.schema.Sort] = &types.AttributeValueMemberS{Value: k.SK}
	}
	return m
}

func (b *DynamoBackend[T]) decode(item map[string]types.AttributeValue) (T, error) {
	var rec T
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return rec, fmt.Errorf("decode item: %w", err)
	}
	return rec, nil
}

func (b *DynamoBackend[T]) decodeAll(items []map[string]types.AttributeValue) ([]T, error) {
	var out []T
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return out, nil
}

func (b *DynamoBackend[T]) Put(ctx context.Context, _ Key, rec T) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      item,
	})
	return err
}

func (b *DynamoBackend[T]) Get(ctx context.Context, key Key) (T, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       b.key(key),
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if len(out.Item) == 0 {
		var zero T
		return zero, ErrNotFound
	}
	return b.decode(out.Item)
}

func (b *DynamoBackend[T]) BatchGet(ctx context.Context, keys []Key) ([]T, error) {
	var items []map[string]types.AttributeValue
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		chunk := make([]map[string]types.AttributeValue, 0, end-start)
		for _, k := range keys[start:end] {
			chunk = append(chunk, b.key(k))
		}
		request := map[string]types.KeysAndAttributes{b.table: {Keys: chunk}}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt == batchGetAttempts {
				return nil, fmt.Errorf("batch get %s: unprocessed keys after %d attempts", b.table, attempt)
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(attempt*50) * time.Millisecond):
				}
			}
			out, err := b.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, err
			}
			items = append(items, out.Responses[b.table]...)
			request = out.UnprocessedKeys
		}
	}
	return b.decodeAll(items)
}

func (b *DynamoBackend[T]) Query(ctx context.Context, pk string) ([]T, error) {
	p := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
		TableName:                 aws.String(b.table),
		KeyConditionExpression:    aws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": b.schema.Partition},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: pk}},
	})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return b.decodeAll(items)
}

func (b *DynamoBackend[T]) Scan(ctx context.Context) ([]T, error) {
	p := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{TableName: aws.String(b.table)})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return b.decodeAll(items)
}

// Replace writes rec only if an item with the same key already exists.
func (b *DynamoBackend[T]) Replace(ctx context.Context, _ Key, rec T) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(b.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": b.schema.Partition},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return err
}

func (b *DynamoBackend[T]) Delete(ctx context.Context, key Key) (T, error) {
	var zero T
	out, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(b.table),
		Key:          b.key(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return zero, err
	}
	if len(out.Attributes) == 0 {
		return zero, ErrNotFound
	}
	return b.decode(out.Attributes)
}
