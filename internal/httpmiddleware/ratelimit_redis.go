package httpmiddleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window per-minute counter backed by Redis, so
// limits hold across restarts and replicas. On Redis failure it fails open;
// rate limiting is protection, not an availability dependency.
type RedisRateLimiter struct {
	client    *redis.Client
	perMinute int
}

// NewRedisRateLimiter creates a limiter allowing perMinute requests per key.
func NewRedisRateLimiter(client *redis.Client, perMinute int) *RedisRateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RedisRateLimiter{client: client, perMinute: perMinute}
}

// Allow increments the current minute's counter for the key.
func (l *RedisRateLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	window := time.Now().Format("200601021504")
	redisKey := fmt.Sprintf("ratelimit:%s:%s", key, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	return count.Val() <= int64(l.perMinute)
}
