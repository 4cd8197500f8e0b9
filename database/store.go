package database

import (
	"context"
	"errors"
	"time"

	"secondserve/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version changed")
)

// NearQuery selects discoverable posts around a point. MaxDistance is in
// meters; Limit caps the result size.
type NearQuery struct {
	Longitude   float64
	Latitude    float64
	MaxDistance float64
	Now         time.Time
	Limit       int
}

// PostStore persists food posts. Every method is atomic per document.
type PostStore interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.FoodPost, error)
	Create(ctx context.Context, post *models.FoodPost) error
	// ConditionalUpdate replaces the stored post only while its version is
	// still expectedVersion, otherwise it returns ErrVersionConflict.
	ConditionalUpdate(ctx context.Context, post *models.FoodPost, expectedVersion int64) error
	QueryNear(ctx context.Context, q NearQuery) ([]models.FoodPost, error)
	ListByDonor(ctx context.Context, donor primitive.ObjectID) ([]models.FoodPost, error)
	ListByAssignee(ctx context.Context, collector primitive.ObjectID) ([]models.FoodPost, error)
	// ListExpirable returns available or requested posts whose expiry is
	// before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.FoodPost, error)
}

// UserDirectory resolves user summaries for display.
type UserDirectory interface {
	Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error)
}

// SubscriptionStore keeps one web-push subscription per user.
type SubscriptionStore interface {
	Save(ctx context.Context, sub models.PushSubscription) error
	Find(ctx context.Context, userID primitive.ObjectID) (*models.PushSubscription, error)
	Delete(ctx context.Context, userID primitive.ObjectID) error
}
