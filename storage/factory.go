package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/johnwmail/pastebin/config"
)

// FactoryOptions carries optional hooks for the constructed store.
type FactoryOptions struct {
	// OnDegradedIncrement is passed to the Redis backend.
	OnDegradedIncrement func()
}

// NewStore builds the backend selected by cfg.StoreType.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts FactoryOptions) (PasteStore, error) {
	logger = loggerOrDefault(logger).With("store", cfg.StoreType)

	switch cfg.StoreType {
	case config.StoreRedis:
		return NewRedisStore(ctx, RedisOptions{
			URL:               cfg.RedisURL,
			Addr:              cfg.RedisAddr,
			Password:          cfg.RedisPassword,
			DB:                cfg.RedisDB,
			NonAtomicFallback: cfg.RedisNonAtomicFallback,
			OnDegraded:        opts.OnDegradedIncrement,
		}, logger)
	case config.StoreDynamoDB:
		return NewDynamoStore(ctx, DynamoOptions{
			Table:    cfg.DynamoDBTable,
			Region:   cfg.DynamoDBRegion,
			Endpoint: cfg.DynamoDBEndpoint,
		}, logger)
	case config.StoreMongoDB:
		return NewMongoStore(ctx, MongoOptions{
			URI:        cfg.MongoDBURI,
			Database:   cfg.MongoDBDatabase,
			Collection: cfg.MongoDBCollection,
		}, logger)
	case config.StoreS3:
		return NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		}, logger)
	case config.StoreFilesystem:
		return NewFilesystemStore(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}
