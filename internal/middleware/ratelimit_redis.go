package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
)

// RedisRateLimitMiddleware limits requests with a GCRA limiter kept in
// Redis, so every process serving the site shares one budget per client.
// name separates the budgets of different routes. When Redis is unreachable
// the request is let through.
func RedisRateLimitMiddleware(limiter *redis_rate.Limiter, name string, config RateLimitConfig) gin.HandlerFunc {
	limit := redis_rate.Limit{
		Rate:   config.RequestsPerMinute,
		Burst:  max(config.BurstSize, 1),
		Period: time.Minute,
	}
	return func(c *gin.Context) {
		key := "ratelimit:" + name + ":" + rateLimitKey(c)
		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			retry := max(1, int(res.RetryAfter.Seconds()+0.5))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}
