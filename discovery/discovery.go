// Package discovery serves the read side: posts near a point and cached
// single-post lookups.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/cache"
	"secondserve/database"
	"secondserve/lifecycle"
	"secondserve/models"
)

const (
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 50000
	DefaultMaxResults   = 50
)

// NearbyQuery is a point plus an optional radius in meters.
type NearbyQuery struct {
	Longitude   float64 `form:"longitude" validate:"gte=-180,lte=180"`
	Latitude    float64 `form:"latitude" validate:"gte=-90,lte=90"`
	MaxDistance float64 `form:"maxDistance" validate:"gte=0"`
}

// NearbyPost is a discoverable post with its donor card and distance.
type NearbyPost struct {
	models.FoodPost
	DonorInfo models.UserSummary `json:"donorInfo"`
	Distance  float64            `json:"distance"`
}

type Service struct {
	posts      database.PostStore
	users      database.UserDirectory
	cache      cache.PostCache
	logger     *zap.Logger
	maxResults int
	now        func() time.Time
	validate   *validator.Validate
}

type Option func(*Service)

func WithMaxResults(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(posts database.PostStore, users database.UserDirectory, c cache.PostCache, opts ...Option) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	s := &Service{
		posts:      posts,
		users:      users,
		cache:      c,
		logger:     zap.NewNop(),
		maxResults: DefaultMaxResults,
		now:        time.Now,
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) FindNearby(ctx context.Context, q NearbyQuery) ([]NearbyPost, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, &lifecycle.Error{Kind: lifecycle.KindValidation, Message: "longitude and latitude must be valid coordinates"}
	}
	radius := q.MaxDistance
	if radius == 0 {
		radius = DefaultRadiusMeters
	}
	if radius > MaxRadiusMeters {
		radius = MaxRadiusMeters
	}

	now := s.now()
	found, err := s.posts.QueryNear(ctx, database.NearQuery{
		Longitude:   q.Longitude,
		Latitude:    q.Latitude,
		MaxDistance: radius,
		Now:         now,
		Limit:       s.maxResults,
	})
	if err != nil {
		return nil, &lifecycle.Error{Kind: lifecycle.KindTransient, Message: "store unavailable, retry the operation", Err: err}
	}

	// The index can lag a status change; never hand out something that
	// can no longer be requested.
	posts := found[:0]
	for _, p := range found {
		if p.Discoverable(now) {
			posts = append(posts, p)
		}
	}

	donors := s.donorCards(ctx, posts)

	out := make([]NearbyPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, NearbyPost{
			FoodPost:  p,
			DonorInfo: donors.of(p.Donor),
			Distance:  database.DistanceMeters(q.Latitude, q.Longitude, p.Location.Latitude(), p.Location.Longitude()),
		})
	}
	return out, nil
}

// PostWithDonor is a post with its donor card attached.
type PostWithDonor struct {
	models.FoodPost
	DonorInfo models.UserSummary `json:"donorInfo"`
}

// WithDonors attaches donor cards to posts, keeping their order.
func (s *Service) WithDonors(ctx context.Context, posts []models.FoodPost) []PostWithDonor {
	donors := s.donorCards(ctx, posts)
	out := make([]PostWithDonor, 0, len(posts))
	for _, p := range posts {
		out = append(out, PostWithDonor{FoodPost: p, DonorInfo: donors.of(p.Donor)})
	}
	return out
}

type donorCards map[primitive.ObjectID]models.UserSummary

// of falls back to a bare id when the donor could not be resolved.
func (d donorCards) of(id primitive.ObjectID) models.UserSummary {
	if info, ok := d[id]; ok {
		return info
	}
	return models.UserSummary{ID: id.Hex()}
}

// donorCards looks up every distinct donor in one call. A failed lookup is
// logged and leaves the cards empty.
func (s *Service) donorCards(ctx context.Context, posts []models.FoodPost) donorCards {
	ids := make([]primitive.ObjectID, 0, len(posts))
	seen := make(map[primitive.ObjectID]struct{}, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.Donor]; !ok {
			seen[p.Donor] = struct{}{}
			ids = append(ids, p.Donor)
		}
	}
	if len(ids) == 0 || s.users == nil {
		return donorCards{}
	}
	cards, err := s.users.Summaries(ctx, ids)
	if err != nil {
		s.logger.Warn("donor lookup failed", zap.Error(err))
		return donorCards{}
	}
	return cards
}

// Get reads through the cache.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.FoodPost, error) {
	if post, ok := s.cache.Get(ctx, id.Hex()); ok {
		return post, nil
	}

	post, err := s.posts.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &lifecycle.Error{Kind: lifecycle.KindNotFound, Message: "Food post not found"}
	}
	if err != nil {
		return nil, &lifecycle.Error{Kind: lifecycle.KindTransient, Message: "store unavailable, retry the operation", Err: err}
	}

	if err := s.cache.Set(ctx, post); err != nil {
		s.logger.Warn("cache fill failed", zap.String("foodId", id.Hex()), zap.Error(err))
	}
	return post, nil
}
