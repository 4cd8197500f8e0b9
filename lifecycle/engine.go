// Package lifecycle owns every state change of a food post. All writes go
// through a conditional update keyed on the post's version, and events are
// published only after the write lands.
package lifecycle

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/database"
	"secondserve/models"
	"secondserve/notify"
	"secondserve/stats"
)

const (
	DefaultMaxRetries = 5
	lockStripes       = 64
)

// Invalidator drops a cached post after it changes.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// AttemptLimiter tracks failed verification attempts per key.
type AttemptLimiter interface {
	Allow(key string) bool
	Exceeded(key string) bool
	Reset(key string)
}

type Engine struct {
	store      database.PostStore
	publisher  notify.Publisher
	stats      stats.Recorder
	cache      Invalidator
	attempts   AttemptLimiter
	logger     *zap.Logger
	now        func() time.Time
	maxRetries int
	newCode    func() (string, string, error)
	validate   *validator.Validate
	locks      [lockStripes]sync.Mutex
}

type Option func(*Engine)

func WithStats(r stats.Recorder) Option {
	return func(e *Engine) { e.stats = r }
}

func WithCache(c Invalidator) Option {
	return func(e *Engine) { e.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithAttemptLimiter(l AttemptLimiter) Option {
	return func(e *Engine) { e.attempts = l }
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func NewEngine(store database.PostStore, publisher notify.Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		publisher:  publisher,
		logger:     zap.NewNop(),
		now:        time.Now,
		maxRetries: DefaultMaxRetries,
		newCode:    newVerificationCode,
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.publisher == nil {
		e.publisher = notify.Discard{}
	}
	return e
}

// outbound is an event waiting for its commit.
type outbound struct {
	channel string
	kind    notify.EventKind
	payload map[string]interface{}
}

// transition mutates a private copy of the stored post. Returning errSkip
// leaves the post untouched without failing.
type transition func(post *models.FoodPost, now time.Time) ([]outbound, error)

var errSkip = errors.New("no change")

func (e *Engine) lockFor(id primitive.ObjectID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return &e.locks[h.Sum32()%lockStripes]
}

// apply runs fn against the latest stored version and commits the result
// with a conditional update. A version conflict means another writer got
// in first, so the post is re-read and fn re-checked against it. Events are
// published while the stripe lock is held so per-post order matches commit
// order.
func (e *Engine) apply(ctx context.Context, id primitive.ObjectID, fn transition) (*models.FoodPost, bool, error) {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		current, err := e.store.Get(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return nil, false, notFound("Food post not found")
		}
		if err != nil {
			return nil, false, transient(err)
		}

		now := e.now()
		next := current.Clone()
		events, err := fn(next, now)
		if errors.Is(err, errSkip) {
			return current, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		next.Version = current.Version + 1
		next.UpdatedAt = now
		err = e.store.ConditionalUpdate(ctx, next, current.Version)
		if errors.Is(err, database.ErrVersionConflict) {
			e.logger.Debug("version conflict, retrying",
				zap.String("foodId", id.Hex()), zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, database.ErrNotFound) {
			return nil, false, notFound("Food post not found")
		}
		if err != nil {
			return nil, false, transient(err)
		}

		e.afterCommit(ctx, next, events)
		return next, true, nil
	}

	return nil, false, conflict("Food post is changing too quickly, try again", "")
}

func (e *Engine) afterCommit(ctx context.Context, post *models.FoodPost, events []outbound) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, post.ID.Hex()); err != nil {
			e.logger.Warn("cache invalidation failed", zap.String("foodId", post.ID.Hex()), zap.Error(err))
		}
	}
	for _, ev := range events {
		e.publisher.Publish(ev.channel, ev.kind, ev.payload)
	}
}

func (e *Engine) record(ctx context.Context, post *models.FoodPost, kind stats.Kind, at time.Time) {
	if e.stats == nil || post.AssignedTo == nil {
		return
	}
	err := e.stats.RecordTerminal(ctx, stats.TerminalEvent{
		PostID:      post.ID,
		DonorID:     post.Donor,
		CollectorID: *post.AssignedTo,
		Servings:    post.Servings,
		Kind:        kind,
		At:          at,
	})
	if err != nil {
		e.logger.Error("stats update failed",
			zap.String("foodId", post.ID.Hex()), zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Get reads a post straight from the store.
func (e *Engine) Get(ctx context.Context, id primitive.ObjectID) (*models.FoodPost, error) {
	post, err := e.store.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, notFound("Food post not found")
	}
	if err != nil {
		return nil, transient(err)
	}
	return post, nil
}
