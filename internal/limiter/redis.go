package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/and161185/keygate/internal/clock"
)

// slidingWindow prunes, counts and conditionally records in one atomic step.
// Returns {allowed, retry_after_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, retry}
`)

// Redis is a sliding-window limiter shared by every process using the same Redis.
type Redis struct {
	rdb    redis.Scripter
	clock  clock.Clock
	limits Limits
	keyNS  string
}

// NewRedis constructs a Redis-backed limiter. keyPrefix defaults to "keygate:throttle:".
func NewRedis(rdb redis.Scripter, limits Limits, clk clock.Clock, keyPrefix string) *Redis {
	if limits == nil {
		limits = Limits{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if keyPrefix == "" {
		keyPrefix = "keygate:throttle:"
	}
	return &Redis{rdb: rdb, clock: clk, limits: limits, keyNS: keyPrefix}
}

// Allow runs the sliding-window script for (userID, op).
func (l *Redis) Allow(ctx context.Context, userID int64, op string) (bool, time.Duration, error) {
	if op == "" {
		return false, 0, errors.New("operation required")
	}
	lim := l.limits.For(op)
	member, err := uuid.NewV4()
	if err != nil {
		return false, 0, err
	}
	now := l.clock.Now().UnixMilli()

	res, err := slidingWindow.Run(ctx, l.rdb,
		[]string{l.keyNS + bucketKey(userID, op)},
		now, lim.Window.Milliseconds(), lim.Max, member.String(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected script reply: %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Millisecond, nil
}
