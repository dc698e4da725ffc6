package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the optional shared schema cache.
type RedisConfig struct {
	Endpoint     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TTL bounds how long a schema document lives in Redis. Zero means no
	// expiry; schemas are immutable, so expiry only limits storage.
	TTL time.Duration
}

// RedisCache is a second-level schema-document cache shared between
// instances. Values are the serialized schema JSON; enrichment happens on
// the reading side.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("redis endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Endpoint,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "schema-cache-redis")),
	}, nil
}

func schemaCacheKey(keyspace string) string {
	return "storoid:schema:" + keyspace
}

// Get returns the cached schema document for a keyspace, or nil on miss.
func (r *RedisCache) Get(ctx context.Context, keyspace string) ([]byte, error) {
	doc, err := r.client.Get(ctx, schemaCacheKey(keyspace)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", keyspace, err)
	}
	return doc, nil
}

// Set stores a schema document.
func (r *RedisCache) Set(ctx context.Context, keyspace string, doc []byte) error {
	if err := r.client.Set(ctx, schemaCacheKey(keyspace), doc, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache schema for %s: %w", keyspace, err)
	}
	return nil
}

// Delete removes a keyspace's schema document.
func (r *RedisCache) Delete(ctx context.Context, keyspace string) error {
	if err := r.client.Del(ctx, schemaCacheKey(keyspace)).Err(); err != nil {
		return fmt.Errorf("failed to delete schema for %s: %w", keyspace, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
