package database

import (
	"context"
	"errors"
	"fmt"

	"secondserve/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUserDirectory struct {
	coll *mongo.Collection
}

var _ UserDirectory = (*MongoUserDirectory)(nil)

func NewMongoUserDirectory(coll *mongo.Collection) *MongoUserDirectory {
	return &MongoUserDirectory{coll: coll}
}

func (d *MongoUserDirectory) Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.M{
		"name":         1,
		"organization": 1,
		"phone":        1,
		"rating":       1,
	})
	cursor, err := d.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Summary()
	}
	return out, nil
}

type MongoSubscriptionStore struct {
	coll *mongo.Collection
}

var _ SubscriptionStore = (*MongoSubscriptionStore)(nil)

func NewMongoSubscriptionStore(coll *mongo.Collection) *MongoSubscriptionStore {
	return &MongoSubscriptionStore{coll: coll}
}

// Save upserts: update if exists, insert if not.
func (s *MongoSubscriptionStore) Save(ctx context.Context, sub models.PushSubscription) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"userId": sub.UserID},
		bson.M{"$set": bson.M{"userId": sub.UserID, "sub": sub.Sub}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

func (s *MongoSubscriptionStore) Find(ctx context.Context, userID primitive.ObjectID) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	err := s.coll.FindOne(ctx, bson.M{"userId": userID}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find push subscription: %w", err)
	}
	return &sub, nil
}

func (s *MongoSubscriptionStore) Delete(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"userId": userID}); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
