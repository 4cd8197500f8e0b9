package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"secondserve/cache"
	"secondserve/config"
	"secondserve/database"
	"secondserve/lifecycle"
	"secondserve/logging"
	"secondserve/middleware"
	"secondserve/stats"
)

// App holds what serve and sweep share.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *database.DB
	redis   *redis.Client
	cache   cache.PostCache
	posts   database.PostStore
	users   database.UserDirectory
	subs    database.SubscriptionStore
	verify  *middleware.RateLimiter
	options []lifecycle.Option
}

type rootOptions struct {
	memory bool
}

func Execute() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "secondserve",
		Short: "SecondServe - surplus food pickup coordination",
		Long:  `Runs the food post lifecycle API, the expiry sweeper and supporting tools.`,
	}
	rootCmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "Keep all data in process instead of MongoDB and Redis (development only)")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(sweepCmd(opts))
	rootCmd.AddCommand(vapidCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and connects the stores.
func bootstrap(ctx context.Context, opts *rootOptions) (*App, error) {
	var cfgOpts []config.Option
	if opts != nil && opts.memory {
		cfgOpts = append(cfgOpts, config.InMemory())
	}
	cfg, err := config.Load(cfgOpts...)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.GinMode, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{cfg: cfg, logger: logger, cache: cache.Nop{}}
	var recorder stats.Recorder
	if cfg.Memory {
		logger.Warn("Using in-memory stores, data is lost on exit")
		app.posts = database.NewMemoryPostStore()
		app.users = database.NewMemoryUserDirectory()
		app.subs = database.NewMemorySubscriptionStore()
		recorder = stats.NewMemoryRecorder()
	} else {
		if err := app.connect(ctx); err != nil {
			return nil, err
		}
		recorder = stats.NewMongoRecorder(app.db.Users)
	}

	app.verify = middleware.NewRateLimiter(cfg.VerifyMaxAttempts, cfg.VerifyAttemptWindow)
	app.options = []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithCache(app.cache),
		lifecycle.WithStats(recorder),
		lifecycle.WithAttemptLimiter(app.verify),
	}
	return app, nil
}

// connect dials MongoDB and, when configured, Redis.
func (a *App) connect(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	logger.Info("Connecting to MongoDB", zap.String("database", cfg.MongoDatabase))
	db, err := database.ConnectWithRetry(ctx, cfg.MongoURI, cfg.MongoDatabase, 3, 2*time.Second, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	a.db = db
	if err := db.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	a.posts = database.NewMongoPostStore(db.Foods)
	a.users = database.NewMongoUserDirectory(db.Users)
	a.subs = database.NewMongoSubscriptionStore(db.PushSubs)

	if cfg.RedisURL != "" {
		a.redis, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// The cache is an optimization; run without it.
			logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		} else {
			a.cache = cache.NewRedisPostCache(a.redis, cache.WithTTL(cfg.CacheTTL))
			logger.Info("Redis cache enabled", zap.Duration("ttl", cfg.CacheTTL))
		}
	}
	return nil
}

// health reports whether the backing store is reachable.
func (a *App) health(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Client.Ping(ctx, readpref.Primary())
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Disconnect(ctx); err != nil {
			a.logger.Warn("MongoDB disconnect failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
