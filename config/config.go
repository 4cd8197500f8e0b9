package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is read from the environment, optionally seeded from a .env file.
type Config struct {
	Port          string `validate:"required,numeric"`
	GinMode       string `validate:"oneof=debug release test"`
	MongoURI      string `validate:"required_unless=Memory true"`
	MongoDatabase string `validate:"required"`
	JWTSecret     string `validate:"required"`

	RedisURL       string        `validate:"omitempty,url"`
	CacheTTL       time.Duration `validate:"gt=0"`
	AllowedOrigins []string

	VAPIDPublicKey  string `validate:"required_with=VAPIDPrivateKey"`
	VAPIDPrivateKey string `validate:"required_with=VAPIDPublicKey"`
	VAPIDSubject    string

	SweepInterval       time.Duration `validate:"gt=0"`
	NearbyLimit         int           `validate:"min=1,max=200"`
	VerifyMaxAttempts   int           `validate:"min=1"`
	VerifyAttemptWindow time.Duration `validate:"gt=0"`
	RateLimit           int           `validate:"min=1"`
	RateLimitWindow     time.Duration `validate:"gt=0"`

	LogFile string

	// Memory keeps every store in process. Nothing survives a restart.
	Memory bool
}

// Option adjusts a Config after it is read from the environment and
// before it is validated.
type Option func(*Config)

// InMemory selects the in-process stores instead of MongoDB and Redis.
func InMemory() Option {
	return func(c *Config) { c.Memory = true }
}

var validate = validator.New()

// Load reads .env when present and then the process environment.
func Load(opts ...Option) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.Getenv, opts...)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string, opts ...Option) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(get(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	integer := func(key, def string) int {
		n, err := strconv.Atoi(get(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}

	cfg := &Config{
		Port:                get("PORT", "8080"),
		GinMode:             get("GIN_MODE", "debug"),
		MongoURI:            get("MONGODB_URI", ""),
		MongoDatabase:       get("MONGODB_DATABASE", "secondserve"),
		JWTSecret:           get("JWT_SECRET", ""),
		RedisURL:            get("REDIS_URL", ""),
		CacheTTL:            duration("CACHE_TTL", "30s"),
		AllowedOrigins:      splitList(get("ALLOWED_ORIGINS", "*")),
		VAPIDPublicKey:      get("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:     get("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:        get("VAPID_SUBJECT", "mailto:admin@secondserve.app"),
		SweepInterval:       duration("SWEEP_INTERVAL", "1m"),
		NearbyLimit:         integer("NEARBY_LIMIT", "50"),
		VerifyMaxAttempts:   integer("VERIFY_MAX_ATTEMPTS", "5"),
		VerifyAttemptWindow: duration("VERIFY_ATTEMPT_WINDOW", "15m"),
		RateLimit:           integer("RATE_LIMIT", "120"),
		RateLimitWindow:     duration("RATE_LIMIT_WINDOW", "1m"),
		LogFile:             get("LOG_FILE", ""),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config parse failed: %w", errors.Join(errs...))
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// PushEnabled reports whether web push can be sent.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
