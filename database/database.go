package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	FoodsCollection     = "foods"
	UsersCollection     = "users"
	PushSubsCollection  = "push_subscriptions"
	defaultDatabaseName = "secondserve"
)

// DB bundles the Mongo client with the collections the service touches.
type DB struct {
	Client   *mongo.Client
	Foods    *mongo.Collection
	Users    *mongo.Collection
	PushSubs *mongo.Collection

	logger *zap.Logger
}

// Connect dials MongoDB and pings it before returning.
func Connect(ctx context.Context, uri, name string, logger *zap.Logger) (*DB, error) {
	if uri == "" {
		logger.Warn("MONGODB_URI not set, using default localhost")
		uri = "mongodb://127.0.0.1:27017"
	}
	if name == "" {
		name = defaultDatabaseName
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(name)
	logger.Info("connected to MongoDB", zap.String("database", name))

	return &DB{
		Client:   client,
		Foods:    db.Collection(FoodsCollection),
		Users:    db.Collection(UsersCollection),
		PushSubs: db.Collection(PushSubsCollection),
		logger:   logger,
	}, nil
}

// ConnectWithRetry retries Connect a fixed number of times with a pause
// between attempts.
func ConnectWithRetry(ctx context.Context, uri, name string, attempts int, pause time.Duration, logger *zap.Logger) (*DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := Connect(ctx, uri, name, logger)
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.Warn("MongoDB connection attempt failed", zap.Int("attempt", i), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
	return nil, lastErr
}

// EnsureIndexes creates the geospatial and lookup indexes the queries rely on.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := d.Foods.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiryTime", Value: 1}}},
		{Keys: bson.D{{Key: "donor", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create food indexes: %w", err)
	}

	_, err = d.PushSubs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create push subscription index: %w", err)
	}
	return nil
}

func (d *DB) Disconnect(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.Client.Disconnect(ctx); err != nil {
		return err
	}

	d.logger.Info("disconnected from MongoDB")
	return nil
}
