package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/johnwmail/pastebin/models"
)

// dynamoAPI is the subset of the DynamoDB client the store uses.
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoOptions configures the DynamoDB backend.
type DynamoOptions struct {
	Table    string
	Region   string
	Endpoint string // e.g. DynamoDB Local
}

// DynamoStore implements PasteStore using DynamoDB. The table's partition
// key is the string attribute "id"; "ttl" holds the storage expiry.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDynamoStore creates a new DynamoDB storage backend
func NewDynamoStore(ctx context.Context, opts DynamoOptions, logger *slog.Logger) (*DynamoStore, error) {
	if opts.Table == "" {
		return nil, errors.New("dynamodb store: table is required")
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb store: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return newDynamoStoreFromClient(client, opts.Table, logger), nil
}

func newDynamoStoreFromClient(client dynamoAPI, table string, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: table,
		logger:    loggerOrDefault(logger),
		now:       time.Now,
	}
}

func (d *DynamoStore) Put(ctx context.Context, id string, paste *models.Paste) error {
	item := map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: Key(id)},
		"content":    &types.AttributeValueMemberS{Value: paste.Content},
		"created_at": numberAttr(paste.CreatedAt),
		"views":      numberAttr(paste.Views),
	}
	if paste.ExpiresAt != nil {
		item["expires_at"] = numberAttr(*paste.ExpiresAt)
	}
	if paste.MaxViews != nil {
		item["max_views"] = numberAttr(*paste.MaxViews)
	}
	if at := purgeAt(paste, d.now()); at != nil {
		item["ttl"] = numberAttr(at.Unix())
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	return err
}

// Get uses a strongly consistent read so a fresh Put is always visible.
func (d *DynamoStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil // Not found
	}
	return d.decodeItem(id, result.Item), nil
}

// IncrementViews relies on UpdateItem being atomic per item. The condition
// stops ADD from creating a stub record for unknown ids.
func (d *DynamoStore) IncrementViews(ctx context.Context, id string) (*models.Paste, error) {
	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.key(id),
		UpdateExpression:    aws.String("ADD #views :one"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#views": "views",
			"#id":    "id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numberAttr(1),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, nil
		}
		return nil, err
	}
	return d.decodeItem(id, out.Attributes), nil
}

func (d *DynamoStore) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.tableName),
	})
	return err
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

func (d *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: Key(id)},
	}
}

// decodeItem converts a DynamoDB item to a Paste model; bad items are absent.
func (d *DynamoStore) decodeItem(id string, item map[string]types.AttributeValue) *models.Paste {
	paste, err := itemToPaste(item)
	if err != nil {
		d.logger.Warn("discarding malformed paste record", "backend", "dynamodb", "id", id, "error", err)
		return nil
	}
	return paste
}

func itemToPaste(item map[string]types.AttributeValue) (*models.Paste, error) {
	content, ok := item["content"].(*types.AttributeValueMemberS)
	if !ok || content.Value == "" {
		return nil, errMalformed
	}
	paste := &models.Paste{Content: content.Value}

	var err error
	if paste.CreatedAt, err = requiredNumber(item, "created_at"); err != nil {
		return nil, err
	}
	if paste.Views, err = requiredNumber(item, "views"); err != nil {
		return nil, err
	}
	if paste.ExpiresAt, err = optionalNumber(item, "expires_at"); err != nil {
		return nil, err
	}
	if paste.MaxViews, err = optionalNumber(item, "max_views"); err != nil {
		return nil, err
	}
	if err := validateRecord(paste); err != nil {
		return nil, err
	}
	return paste, nil
}

func requiredNumber(item map[string]types.AttributeValue, name string) (int64, error) {
	v, err := optionalNumber(item, name)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", errMalformed, name)
	}
	return *v, nil
}

func optionalNumber(item map[string]types.AttributeValue, name string) (*int64, error) {
	switch attr := item[name].(type) {
	case nil, *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberN:
		n, err := strconv.ParseInt(attr.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errMalformed, name, err)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("%w: %s has type %T", errMalformed, name, attr)
	}
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
