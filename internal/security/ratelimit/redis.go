package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dutywise/dutywise/internal/security/domain"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const slidingWindowScript = `
local window = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local member = ARGV[3]

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)

local count = redis.call("ZCARD", KEYS[1])
if count >= max then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  local reset = now + window
  if oldest[2] then
    reset = tonumber(oldest[2]) + window
  end
  return {0, 0, reset}
end

redis.call("ZADD", KEYS[1], now, member)
redis.call("PEXPIRE", KEYS[1], window)

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local reset = now + window
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end

-- Return: allowed, remaining, reset (milliseconds)
return {1, max - count - 1, reset}
`

// RedisLimiter runs the check-and-record as one Lua script so concurrent
// requests on the same key cannot both observe room remaining.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(slidingWindowScript),
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (*domain.LimitResult, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if max <= 0 || window <= 0 {
		return nil, errors.New("rate limiter max and window must be positive")
	}

	res, err := r.script.Run(
		ctx,
		r.client,
		[]string{"ratelimit:" + key},
		int64(window/time.Millisecond),
		max,
		uuid.NewString(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 3 {
		return nil, errors.New("invalid rate limit script response")
	}

	allowed := castToInt(res[0]) == 1
	remaining := int(castToInt(res[1]))
	resetMillis := castToInt(res[2])

	return &domain.LimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetMillis).UTC(),
	}, nil
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
