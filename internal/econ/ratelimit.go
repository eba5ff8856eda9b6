package econ

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter admits at most limit trades per rolling window per account,
// backed by a Redis sorted set of trade timestamps. This is the only
// admission control on the trading engine; it blocks rapid-fire sequences
// that try to walk the price through many small successive orders.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// allowScript prunes, counts and records in a single atomic step, so a burst
// of concurrent submissions cannot all observe a count below the limit
// before any of them records its timestamp.
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = 5 * time.Second
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

// Allow records one trade attempt and returns ErrRateLimited when the account
// already has limit trades inside the window.
func (l *RateLimiter) Allow(ctx context.Context, accountID uuid.UUID) error {
	now := l.now()
	key := "trades:" + accountID.String()
	cutoff := now.Add(-l.window).UnixNano()

	admitted, err := allowScript.Run(ctx, l.rdb, []string{key},
		cutoff, l.limit, now.UnixNano(), uuid.NewString(), l.window.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if admitted == 0 {
		return ErrRateLimited
	}
	return nil
}
