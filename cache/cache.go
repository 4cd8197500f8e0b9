package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"secondserve/models"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultTTL    = 30 * time.Second
	DefaultPrefix = "food:"
)

// PostCache is a short-lived read-through cache for single-post lookups.
// Entries may be stale for at most the configured TTL.
type PostCache interface {
	// Get returns the cached post and true on a hit. Errors degrade to a miss.
	Get(ctx context.Context, id string) (*models.FoodPost, bool)
	Set(ctx context.Context, post *models.FoodPost) error
	Invalidate(ctx context.Context, id string) error
}

// RedisPostCache stores BSON-encoded posts under prefix+id with a TTL.
type RedisPostCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	hits   int64
	misses int64
}

var _ PostCache = (*RedisPostCache)(nil)

type Option func(*RedisPostCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisPostCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(c *RedisPostCache) {
		c.prefix = prefix
	}
}

func NewRedisPostCache(client *redis.Client, opts ...Option) *RedisPostCache {
	c := &RedisPostCache{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisPostCache) key(id string) string {
	return c.prefix + id
}

func (c *RedisPostCache) Get(ctx context.Context, id string) (*models.FoodPost, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		// redis.Nil or an unreachable server both count as a miss.
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var post models.FoodPost
	if err := bson.Unmarshal(raw, &post); err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return &post, true
}

func (c *RedisPostCache) Set(ctx context.Context, post *models.FoodPost) error {
	data, err := bson.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal food: %w", err)
	}
	if err := c.client.Set(ctx, c.key(post.ID.Hex()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache food: %w", err)
	}
	return nil
}

func (c *RedisPostCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("invalidate food: %w", err)
	}
	return nil
}

func (c *RedisPostCache) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses

	stats := map[string]interface{}{
		"hits":          hits,
		"misses":        misses,
		"total_lookups": total,
	}
	if total > 0 {
		stats["hit_rate"] = float64(hits) / float64(total)
	}
	return stats
}

// Nop never hits. It is used when no Redis URL is configured.
type Nop struct{}

var _ PostCache = Nop{}

func (Nop) Get(context.Context, string) (*models.FoodPost, bool) { return nil, false }
func (Nop) Set(context.Context, *models.FoodPost) error         { return nil }
func (Nop) Invalidate(context.Context, string) error            { return nil }
