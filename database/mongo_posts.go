package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"secondserve/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPostStore stores food posts in the foods collection. Conditional
// updates are a single ReplaceOne keyed on _id and version.
type MongoPostStore struct {
	coll *mongo.Collection
}

var _ PostStore = (*MongoPostStore)(nil)

func NewMongoPostStore(coll *mongo.Collection) *MongoPostStore {
	return &MongoPostStore{coll: coll}
}

func (s *MongoPostStore) Get(ctx context.Context, id primitive.ObjectID) (*models.FoodPost, error) {
	var post models.FoodPost
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find food %s: %w", id.Hex(), err)
	}
	return &post, nil
}

func (s *MongoPostStore) Create(ctx context.Context, post *models.FoodPost) error {
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, post); err != nil {
		return fmt.Errorf("insert food: %w", err)
	}
	return nil
}

func (s *MongoPostStore) ConditionalUpdate(ctx context.Context, post *models.FoodPost, expectedVersion int64) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": post.ID, "version": expectedVersion}, post)
	if err != nil {
		return fmt.Errorf("replace food %s: %w", post.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *MongoPostStore) QueryNear(ctx context.Context, q NearQuery) ([]models.FoodPost, error) {
	filter := bson.M{
		"status":     models.StatusAvailable,
		"expiryTime": bson.M{"$gt": q.Now},
		"location": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": bson.A{q.Longitude, q.Latitude},
				},
				"$maxDistance": q.MaxDistance,
			},
		},
	}

	opts := options.Find()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return s.find(ctx, filter, opts)
}

func (s *MongoPostStore) ListByDonor(ctx context.Context, donor primitive.ObjectID) ([]models.FoodPost, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.find(ctx, bson.M{"donor": donor}, opts)
}

func (s *MongoPostStore) ListByAssignee(ctx context.Context, collector primitive.ObjectID) ([]models.FoodPost, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return s.find(ctx, bson.M{"assignedTo": collector}, opts)
}

func (s *MongoPostStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.FoodPost, error) {
	filter := bson.M{
		"status":     bson.M{"$in": bson.A{models.StatusAvailable, models.StatusRequested}},
		"expiryTime": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "expiryTime", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, filter, opts)
}

func (s *MongoPostStore) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.FoodPost, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find foods: %w", err)
	}
	defer cursor.Close(ctx)

	posts := []models.FoodPost{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode foods: %w", err)
	}
	return posts, nil
}
