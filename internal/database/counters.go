package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Counter key prefixes
	CounterKeyRateLimit = "keygate:ratelimit:"
	CounterKeyIPSet     = "keygate:ips:"
)

// CounterBump atomically increments a counter and refreshes its expiry,
// returning the value the counter held before this increment. An existing
// counter keeps the remaining life of its original window; only a fresh one
// gets the full window.
func CounterBump(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := Redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, err
	}

	prev, _ := getCmd.Int64()

	expiry := window
	if remaining := ttlCmd.Val(); remaining > 0 {
		expiry = remaining
	}

	pipe = Redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return prev, nil
}

// SetAdd adds a member to a windowed set and returns the resulting
// cardinality. Only a fresh set gets the window; later adds keep the
// original expiry so the bucket cannot slide.
func SetAdd(ctx context.Context, key, member string, window time.Duration) (int64, error) {
	pipe := Redis.Pipeline()
	pipe.SAdd(ctx, key, member)
	pipe.ExpireNX(ctx, key, window)
	cardCmd := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return cardCmd.Val(), nil
}
