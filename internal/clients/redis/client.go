package redis

import (
	"context"
	"fmt"
	"time"

	"voice-agent-server/internal/config"
	"voice-agent-server/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client with observability. All methods tolerate a
// nil receiver so callers can run without Redis configured.
type Client struct {
	client *redis.Client
	logger *observability.Logger
}

// NewClient creates a new Redis client. Returns (nil, nil) when Redis is
// disabled in config.
func NewClient(cfg config.RedisConfig, logger *observability.Logger) (*Client, error) {
	if !cfg.Enabled {
		logger.Info(context.Background(), "Redis is disabled, skipping client initialization")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "host", Value: cfg.Host},
		observability.Field{Key: "port", Value: cfg.Port},
		observability.Field{Key: "db", Value: cfg.DB},
	), "successfully connected to Redis")

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// IsEnabled reports whether a live Redis connection is available.
func (c *Client) IsEnabled() bool {
	return c != nil && c.client != nil
}

// GetClient returns the underlying Redis client.
func (c *Client) GetClient() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ZAdd adds a member with score to a sorted set.
func (c *Client) ZAdd(ctx context.Context, key string, members ...redis.Z) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.ZAdd(ctx, key, members...).Err()
}

// ZRemRangeByScore removes members of a sorted set within a score range.
func (c *Client) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.ZRemRangeByScore(ctx, key, min, max).Err()
}

// ZCard returns the cardinality of a sorted set.
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}
	return c.client.ZCard(ctx, key).Result()
}

// Expire sets a TTL on a key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Expire(ctx, key, ttl).Err()
}
