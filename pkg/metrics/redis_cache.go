package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tourwise/pulse/pkg/logging"
)

// RedisCacheConfig holds connection settings for the durable metric cache.
type RedisCacheConfig struct {
	Address      string        `yaml:"address" json:"address"`
	Password     string        `yaml:"password" json:"password"`
	Database     int           `yaml:"database" json:"database"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
}

// RedisCache is the redis-backed implementation of Cache. All operations are
// best-effort: the caller degrades to memory-only state on any error.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logging.StructuredLogger
}

// NewRedisCache creates a redis cache and verifies connectivity once. A failed
// ping is returned to the caller so wiring code can decide to run without a
// durable cache rather than aborting startup.
func NewRedisCache(cfg RedisCacheConfig, logger *logging.StructuredLogger) (*RedisCache, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pulse"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.WithComponent("redis_cache"),
	}, nil
}

// Put stores a value with a TTL.
func (c *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.keyPrefix+":"+key, value, ttl).Err()
}

// Get fetches a value. The second return reports presence; an expired or
// missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+":"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
