package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/synctity/pkg/config/configstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Ensure MongoStore implements the ConfigStore interface
var _ configstore.ConfigStore = (*MongoStore)(nil)

const opTimeout = 10 * time.Second

// ErrNotFound reports a missing document.
var ErrNotFound = errors.New("document not found")

// collection is the part of *mongo.Collection the store uses.
type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

type MongoStore struct {
	client *mongo.Client
	coll   collection
	ID     string // document holding the profile set, e.g. "synctity"
}

func New(uri, dbName, collName, id string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	//  ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
		ID:     id,
	}, nil
}

func (m *MongoStore) Load(out any) error {
	if out == nil {
		return fmt.Errorf("Load: output parameter must not be nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res := m.coll.FindOne(ctx, bson.M{"_id": m.ID})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("document with ID %q: %w", m.ID, ErrNotFound)
		}
		return fmt.Errorf("MongoDB FindOne failed: %w", err)
	}
	if err := res.Decode(out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func (m *MongoStore) Save(in any) error {
	if in == nil {
		return fmt.Errorf("Save: input parameter must not be nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := m.coll.ReplaceOne(
		ctx,
		bson.M{"_id": m.ID},
		in,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("Save: MongoDB ReplaceOne failed: %w", err)
	}
	return nil
}

func (m *MongoStore) Watch(onChange func()) error {
	return fmt.Errorf("MongoDB store: %w", configstore.ErrWatchNotSupported)
}

// Close disconnects the underlying client.
func (m *MongoStore) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
