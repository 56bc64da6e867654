package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-group sliding window limiter backed by a Redis sorted
// set. Telegram throttles bots that post to one group too often, so sends
// beyond the window budget are skipped instead of attempted.
type RateLimiter struct {
	client *redis.Client
	logger *slog.Logger
	limit  int
	window time.Duration
	now    func() time.Time
	seq    atomic.Int64
}

// Trims expired members, then admits the request only while under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
end
return 0
`)

// NewRateLimiter allows limit sends per group within window. A limit of zero
// or less disables limiting.
func NewRateLimiter(client *redis.Client, logger *slog.Logger, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func limiterKey(groupID string) string {
	return "alerts:rl:" + groupID
}

// Allow reports whether one more send to groupID fits the window. Redis
// errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, groupID string) bool {
	if rl.limit <= 0 {
		return true
	}

	now := rl.now().UnixMilli()
	member := fmt.Sprintf("%d-%d", now, rl.seq.Add(1))

	result, err := slidingWindowScript.Run(ctx, rl.client, []string{limiterKey(groupID)},
		now, rl.window.Milliseconds(), rl.limit, member,
	).Int64()
	if err != nil {
		rl.logger.Warn("rate limiter script failed", "group_id", groupID, "error", err)
		return true
	}

	if result == 0 {
		rl.logger.Debug("group rate limited", "group_id", groupID, "limit", rl.limit, "window", rl.window)
		return false
	}
	return true
}
