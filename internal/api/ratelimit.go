package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"raggate/internal/redis"
)

const rateLimitWindow = time.Minute

// rateLimiter caps query submissions per user over a fixed window, counted
// in redis so the limit holds across gateway instances. Fails open when the
// cache is unreachable.
type rateLimiter struct {
	cache *redis.Client
	limit int
}

func newRateLimiter(cache *redis.Client, limit int) *rateLimiter {
	if cache == nil || limit <= 0 {
		return nil
	}
	return &rateLimiter{cache: cache, limit: limit}
}

func (rl *rateLimiter) allow(ctx context.Context, userID string) bool {
	if rl == nil {
		return true
	}
	now := time.Now()
	key := fmt.Sprintf("ratelimit:user:%s:%d", userID, now.Unix()/int64(rateLimitWindow.Seconds()))

	pipe := rl.cache.Raw().Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*rateLimitWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("rate limit check failed: %v", err)
		return true
	}
	return incr.Val() <= int64(rl.limit)
}
