package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"commission_backend/internal/logger"
	"commission_backend/pkg/apperrors"
)

//go:generate mockgen -source=rate_limit.go -destination=mocks/mock_counter.go -package=mocks

// Counter is a keyed counter whose window starts on the first hit.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimitConfig struct {
	Scope    string
	Requests int
	Window   time.Duration
}

// RateLimit allows cfg.Requests per cfg.Window for each user (or client IP when
// anonymous). When the counter store is down requests pass through.
func RateLimit(counter Counter, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || cfg.Requests <= 0 {
			c.Next()
			return
		}

		key := rateLimitKey(c, cfg.Scope)
		count, err := counter.Incr(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.CtxWithError(c.Request.Context(), "rate limiter unavailable, allowing request", err, "key", key)
			c.Next()
			return
		}

		remaining := int64(cfg.Requests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(cfg.Requests) {
			c.Header("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			logger.CtxWarn(c.Request.Context(), "rate limit exceeded", "key", key, "count", count)
			apperrors.HandleError(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context, scope string) string {
	if userID := GetUserID(c); userID != "" {
		return "ratelimit:" + scope + ":user:" + userID
	}
	return "ratelimit:" + scope + ":ip:" + c.ClientIP()
}
