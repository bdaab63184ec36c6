package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the sorted set to the window, admits the request
// when there is room and returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first == 2 then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisLimiter shares a sliding window across server replicas using one
// sorted set per identifier.
type RedisLimiter struct {
	client    *redis.Client
	config    Config
	keyPrefix string
}

// NewRedisLimiter creates a limiter storing keys under keyPrefix
// ("ratelimit:" when empty). The client is owned by the caller.
func NewRedisLimiter(client *redis.Client, cfg Config, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisLimiter{client: client, config: cfg, keyPrefix: keyPrefix}
}

// Allow runs the sliding window script for identifier.
func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (*Result, error) {
	now := time.Now()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	vals, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.keyPrefix + identifier},
		nowMs, l.config.Window.Milliseconds(), l.config.Requests, member,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script returned %d values", len(vals))
	}

	var oldest time.Time
	if vals[2] > 0 {
		oldest = time.UnixMilli(vals[2])
	}
	return l.config.result(vals[0] == 1, int(vals[1]), oldest, now), nil
}

// Reset deletes the identifier's window.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	return l.client.Del(ctx, l.keyPrefix+identifier).Err()
}

// Close is a no-op; the Redis client is closed by its owner.
func (l *RedisLimiter) Close() error {
	return nil
}
