package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"secondserve/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryPostStore is an in-process PostStore used by tests and the
// --memory development mode.
type MemoryPostStore struct {
	mu    sync.RWMutex
	posts map[primitive.ObjectID]*models.FoodPost

	// Fail, when set, is returned by every call. Tests use it to simulate
	// an unreachable store.
	Fail error
}

var _ PostStore = (*MemoryPostStore)(nil)

func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{posts: make(map[primitive.ObjectID]*models.FoodPost)}
}

func (s *MemoryPostStore) Get(ctx context.Context, id primitive.ObjectID) (*models.FoodPost, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return post.Clone(), nil
}

func (s *MemoryPostStore) Create(ctx context.Context, post *models.FoodPost) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	s.posts[post.ID] = post.Clone()
	return nil
}

func (s *MemoryPostStore) ConditionalUpdate(ctx context.Context, post *models.FoodPost, expectedVersion int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.posts[post.ID]
	if !ok || current.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.posts[post.ID] = post.Clone()
	return nil
}

func (s *MemoryPostStore) QueryNear(ctx context.Context, q NearQuery) ([]models.FoodPost, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		post     models.FoodPost
		distance float64
	}
	var hits []hit
	for _, p := range s.posts {
		if !p.Discoverable(q.Now) {
			continue
		}
		d := DistanceMeters(q.Latitude, q.Longitude, p.Location.Latitude(), p.Location.Longitude())
		if d > q.MaxDistance {
			continue
		}
		hits = append(hits, hit{post: *p.Clone(), distance: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]models.FoodPost, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.post)
	}
	return out, nil
}

func (s *MemoryPostStore) ListByDonor(ctx context.Context, donor primitive.ObjectID) ([]models.FoodPost, error) {
	return s.list(ctx, func(p *models.FoodPost) bool { return p.Donor == donor })
}

func (s *MemoryPostStore) ListByAssignee(ctx context.Context, collector primitive.ObjectID) ([]models.FoodPost, error) {
	return s.list(ctx, func(p *models.FoodPost) bool { return p.AssignedTo != nil && *p.AssignedTo == collector })
}

func (s *MemoryPostStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.FoodPost, error) {
	posts, err := s.list(ctx, func(p *models.FoodPost) bool {
		return (p.Status == models.StatusAvailable || p.Status == models.StatusRequested) && !p.ExpiryTime.After(now)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// list returns matches newest first.
func (s *MemoryPostStore) list(ctx context.Context, match func(*models.FoodPost) bool) ([]models.FoodPost, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.FoodPost{}
	for _, p := range s.posts {
		if match(p) {
			out = append(out, *p.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryPostStore) check(ctx context.Context) error {
	if s.Fail != nil {
		return s.Fail
	}
	return ctx.Err()
}

type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

var _ UserDirectory = (*MemoryUserDirectory)(nil)

func NewMemoryUserDirectory(users ...models.User) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[primitive.ObjectID]models.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryUserDirectory) Put(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryUserDirectory) Summaries(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

type MemorySubscriptionStore struct {
	mu   sync.Mutex
	subs map[primitive.ObjectID]models.PushSubscription
}

var _ SubscriptionStore = (*MemorySubscriptionStore)(nil)

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[primitive.ObjectID]models.PushSubscription)}
}

func (s *MemorySubscriptionStore) Save(_ context.Context, sub models.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.UserID] = sub
	return nil
}

func (s *MemorySubscriptionStore) Find(_ context.Context, userID primitive.ObjectID) (*models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemorySubscriptionStore) Delete(_ context.Context, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, userID)
	return nil
}
