package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis fixed-window limiter keyed per validator (or
// per IP before auth). It protects the validate endpoint from
// runaway device loops; legitimate gate traffic stays far below the
// window.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow counts one request against key's current window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := r.redis.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.redis.Expire(ctx, windowKey, r.window)
	}
	return count <= int64(r.limit), nil
}

// Middleware enforces the limit on a route. Redis trouble fails open:
// the gate must never stop admitting people because the limiter's
// store is down.
func (r *RateLimiter) Middleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := e.RealIP()
		if e.Auth != nil {
			key = "validator:" + e.Auth.Id
		}

		allowed, err := r.Allow(e.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, failing open", "error", err)
			return e.Next()
		}
		if !allowed {
			return apis.NewApiError(http.StatusTooManyRequests,
				"Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}
