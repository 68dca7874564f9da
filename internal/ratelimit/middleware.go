package ratelimit

import (
	"fmt"

	"voice-agent-server/internal/apierrors"
	"voice-agent-server/internal/observability"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware limiting webhook deliveries per source
// address. Rate limiting errors fail open so telephony events are never
// dropped by an unhealthy Redis.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		source := c.ClientIP()

		result, err := s.Check(ctx, source)
		if err != nil {
			s.logger.Error(ctx, "rate limit check failed, allowing request", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", result.RetryAfterMs/1000))
			s.logger.Warn(observability.WithFields(ctx,
				observability.Field{Key: "rate_limit_source", Value: source},
				observability.Field{Key: "retry_after_ms", Value: result.RetryAfterMs},
			), "rate limit exceeded")
			apierrors.TooManyRequests(c, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
