package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/johnwmail/pastebin/models"
)

// MongoOptions configures the MongoDB backend.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// mongoPaste is the stored document: the record fields plus key and purge time.
type mongoPaste struct {
	ID           string `bson:"_id"`
	models.Paste `bson:",inline"`
	PurgeAt      *time.Time `bson:"purge_at,omitempty"`
}

// MongoStore implements PasteStore using MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
	now        func() time.Time
}

// NewMongoStore connects, pings and ensures the TTL index exists.
func NewMongoStore(ctx context.Context, opts MongoOptions, logger *slog.Logger) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, errors.New("mongodb store: uri is required")
	}
	if opts.Database == "" {
		opts.Database = "pastebin"
	}
	if opts.Collection == "" {
		opts.Collection = "pastes"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb store: %w", err)
	}

	store := newMongoStoreFromCollection(client.Database(opts.Database).Collection(opts.Collection), logger)
	store.client = client
	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb store: create indexes: %w", err)
	}
	return store, nil
}

func newMongoStoreFromCollection(coll *mongo.Collection, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		collection: coll,
		logger:     loggerOrDefault(logger),
		now:        time.Now,
	}
}

// createIndexes adds a TTL index on purge_at. Documents without the field
// never expire.
func (m *MongoStore) createIndexes(ctx context.Context) error {
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "purge_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, ttlIndex)
	return err
}

func (m *MongoStore) Put(ctx context.Context, id string, paste *models.Paste) error {
	doc := mongoPaste{
		ID:      Key(id),
		Paste:   *paste,
		PurgeAt: purgeAt(paste, m.now()),
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	return m.decode(id, m.collection.FindOne(ctx, bson.M{"_id": Key(id)}))
}

// IncrementViews uses $inc, which is atomic on a single document.
func (m *MongoStore) IncrementViews(ctx context.Context, id string) (*models.Paste, error) {
	res := m.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": Key(id)},
		bson.M{"$inc": bson.M{"views": int64(1)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	return m.decode(id, res)
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}

func (m *MongoStore) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) decode(id string, res *mongo.SingleResult) (*models.Paste, error) {
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // Not found
		}
		return nil, err
	}
	var doc mongoPaste
	if err := res.Decode(&doc); err != nil {
		m.logger.Warn("discarding malformed paste record", "backend", "mongodb", "id", id, "error", err)
		return nil, nil
	}
	if err := validateRecord(&doc.Paste); err != nil {
		m.logger.Warn("discarding malformed paste record", "backend", "mongodb", "id", id, "error", err)
		return nil, nil
	}
	p := doc.Paste
	return &p, nil
}
