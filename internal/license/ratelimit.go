package license

import (
	"context"
	"log"
	"time"

	"github.com/zmnix/keygate/internal/database"
)

// CounterStore is the atomic increment-with-expiry backend for the rate
// limiter. The production store is Redis; tests supply an in-memory fake.
type CounterStore interface {
	// Bump increments the counter for key, setting its expiry to the
	// remaining life of the original window (or to window when the counter
	// is new), and returns the value held before the increment.
	Bump(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounterStore backs the limiter with the shared Redis connection.
type RedisCounterStore struct{}

func (RedisCounterStore) Bump(ctx context.Context, key string, window time.Duration) (int64, error) {
	return database.CounterBump(ctx, database.CounterKeyRateLimit+key, window)
}

// RateLimiter is a fixed-window limiter over an external atomic counter.
// The window used for comparison is the original window's remaining life,
// not a fresh window per request, so bursts cannot push the reset forward.
type RateLimiter struct {
	store  CounterStore
	max    int
	window time.Duration
}

func NewRateLimiter(store CounterStore, maxRequests, windowSeconds int) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 10
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	return &RateLimiter{
		store:  store,
		max:    maxRequests,
		window: time.Duration(windowSeconds) * time.Second,
	}
}

// IsLimited counts this request against key and reports whether the caller
// was already at the limit. Store failures fail open: verification
// availability must not depend on limiter infrastructure.
func (rl *RateLimiter) IsLimited(ctx context.Context, key string) bool {
	prev, err := rl.store.Bump(ctx, key, rl.window)
	if err != nil {
		log.Printf("Rate limiter store error for %s, failing open: %v", key, err)
		return false
	}
	return prev >= int64(rl.max)
}
