package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a per-endpoint sliding-window rate limiter over
// Redis: a sorted set where each member is a unique request id scored by
// timestamp. A Lua script atomically prunes expired entries, checks the
// count, and admits the request, so concurrent callers never race past the
// limit.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

// NewRateLimiter creates a rate limiter backed by the given Redis client.
func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(endpointID string) string {
	return fmt.Sprintf("hookrelay:rl:%s", endpointID)
}

// Allow reports whether a delivery attempt to endpointID is within the
// per-second limit. limit <= 0 means unlimited. On a Redis failure it fails
// open, since refusing to deliver is worse than skipping the rate check for
// one attempt.
func (rl *RateLimiter) Allow(ctx context.Context, endpointID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := rlKey(endpointID)
	now := time.Now().UnixMilli()
	window := int64(1000)
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key}, now, window, limit, member).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "endpoint_id", endpointID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "endpoint_id", endpointID, "limit", limit)
		return false
	}
	return true
}
