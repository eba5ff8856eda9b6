package econ

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T, limit int, window time.Duration) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRateLimiter(rdb, limit, window)
}

func TestRateLimiterBlocksFourthTrade(t *testing.T) {
	l := testLimiter(t, 3, 5*time.Second)
	ctx := context.Background()
	account := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, account), "trade %d", i+1)
	}
	require.ErrorIs(t, l.Allow(ctx, account), ErrRateLimited)
}

func TestRateLimiterConcurrentBurst(t *testing.T) {
	l := testLimiter(t, 3, 5*time.Second)
	ctx := context.Background()
	account := uuid.New()

	// A parallel burst must not slip past the limit: check and record are
	// one atomic step on the Redis side.
	const attempts = 20
	var wg sync.WaitGroup
	var admitted, limited atomic.Int64
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Allow(ctx, account)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrRateLimited):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 3, admitted.Load())
	require.EqualValues(t, attempts-3, limited.Load())
}

func TestRateLimiterWindowSlides(t *testing.T) {
	l := testLimiter(t, 3, 5*time.Second)
	ctx := context.Background()
	account := uuid.New()

	base := time.Now()
	clock := base
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, account))
	}
	require.ErrorIs(t, l.Allow(ctx, account), ErrRateLimited)

	// Once the earlier trades age out of the window, new ones are admitted.
	clock = base.Add(5*time.Second + time.Millisecond)
	require.NoError(t, l.Allow(ctx, account))
}

func TestRateLimiterIsPerAccount(t *testing.T) {
	l := testLimiter(t, 1, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, uuid.New()))
	require.NoError(t, l.Allow(ctx, uuid.New()))
}

func TestRateLimiterRejectionDoesNotConsumeSlot(t *testing.T) {
	l := testLimiter(t, 2, 5*time.Second)
	ctx := context.Background()
	account := uuid.New()

	base := time.Now()
	clock := base
	l.now = func() time.Time { return clock }

	require.NoError(t, l.Allow(ctx, account))
	clock = base.Add(time.Second)
	require.NoError(t, l.Allow(ctx, account))
	clock = base.Add(2 * time.Second)
	require.ErrorIs(t, l.Allow(ctx, account), ErrRateLimited)

	// The first trade leaves the window at base+5s; the rejected attempt at
	// base+2s must not have extended the block.
	clock = base.Add(5*time.Second + time.Millisecond)
	require.NoError(t, l.Allow(ctx, account))
}
