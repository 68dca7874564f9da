package ratelimit

import (
	"context"
	"fmt"
	"time"

	"voice-agent-server/internal/clients/redis"
	"voice-agent-server/internal/observability"

	goredis "github.com/redis/go-redis/v9"
)

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed      bool      `json:"allowed"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"reset_at"`
	RetryAfterMs int       `json:"retry_after_ms,omitempty"`
}

// Service rate-limits webhook deliveries per source address using a Redis
// sliding window. Without Redis every request is allowed.
type Service struct {
	redis  *redis.Client
	limit  int
	logger *observability.Logger
}

// NewService creates a new rate limiting service. The limit is requests per
// minute per source.
func NewService(redisClient *redis.Client, limit int, logger *observability.Logger) *Service {
	return &Service{
		redis:  redisClient,
		limit:  limit,
		logger: logger,
	}
}

// Check records one request from the source and reports whether it is within
// the per-minute limit.
func (s *Service) Check(ctx context.Context, source string) (Result, error) {
	if !s.redis.IsEnabled() {
		return Result{Allowed: true, Limit: s.limit, Remaining: s.limit}, nil
	}

	// Sliding window over Redis sorted sets.
	// Key: rl:{source}, members and scores are request timestamps in ms.
	key := fmt.Sprintf("rl:%s", source)
	now := time.Now()
	nowMs := now.UnixMilli()
	windowStartMs := now.Add(-1 * time.Minute).UnixMilli()

	if err := s.redis.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStartMs)); err != nil {
		return Result{}, fmt.Errorf("failed to remove old entries: %w", err)
	}

	count, err := s.redis.ZCard(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count requests: %w", err)
	}

	if int(count) >= s.limit {
		oldest, err := s.redis.GetClient().ZRange(ctx, key, 0, 0).Result()
		if err != nil || len(oldest) == 0 {
			return Result{
				Allowed:      false,
				Limit:        s.limit,
				Remaining:    0,
				ResetAt:      now.Add(1 * time.Minute),
				RetryAfterMs: 60000,
			}, nil
		}

		var oldestTs int64
		fmt.Sscanf(oldest[0], "%d", &oldestTs)
		retryAfter := time.UnixMilli(oldestTs).Add(1 * time.Minute).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}

		return Result{
			Allowed:      false,
			Limit:        s.limit,
			Remaining:    0,
			ResetAt:      time.UnixMilli(oldestTs).Add(1 * time.Minute),
			RetryAfterMs: int(retryAfter.Milliseconds()),
		}, nil
	}

	err = s.redis.ZAdd(ctx, key, goredis.Z{
		Score:  float64(nowMs),
		Member: fmt.Sprintf("%d", nowMs),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to add request: %w", err)
	}

	// Window is one minute; keep the key around twice that.
	if err := s.redis.Expire(ctx, key, 2*time.Minute); err != nil {
		s.logger.Warn(ctx, "failed to set expiration on rate limit key")
	}

	return Result{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - int(count) - 1,
		ResetAt:   now.Add(1 * time.Minute),
	}, nil
}
