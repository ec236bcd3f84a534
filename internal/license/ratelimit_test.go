package license

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeCounterStore mirrors the production store's semantics in memory: each
// key keeps the window it was created with and counts until it lapses.
type fakeCounterStore struct {
	now      time.Time
	counters map[string]*fakeCounter
	err      error
}

type fakeCounter struct {
	value    int64
	expireAt time.Time
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{
		now:      time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
		counters: make(map[string]*fakeCounter),
	}
}

func (s *fakeCounterStore) Bump(_ context.Context, key string, window time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	counter, ok := s.counters[key]
	if !ok || !s.now.Before(counter.expireAt) {
		counter = &fakeCounter{expireAt: s.now.Add(window)}
		s.counters[key] = counter
	}
	prev := counter.value
	counter.value++
	return prev, nil
}

func (s *fakeCounterStore) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func TestRateLimiterFixedWindow(t *testing.T) {
	store := newFakeCounterStore()
	limiter := NewRateLimiter(store, 5, 300)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.False(t, limiter.IsLimited(ctx, "client"), "call %d must pass", i+1)
	}
	assert.True(t, limiter.IsLimited(ctx, "client"), "sixth call in the window must be limited")

	store.advance(301 * time.Second)
	assert.False(t, limiter.IsLimited(ctx, "client"), "a fresh window must admit requests again")
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	store := newFakeCounterStore()
	limiter := NewRateLimiter(store, 1, 60)
	ctx := context.Background()

	assert.False(t, limiter.IsLimited(ctx, "a"))
	assert.True(t, limiter.IsLimited(ctx, "a"))
	assert.False(t, limiter.IsLimited(ctx, "b"))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	store := newFakeCounterStore()
	store.err = errors.New("store unavailable")
	limiter := NewRateLimiter(store, 1, 60)

	for i := 0; i < 10; i++ {
		assert.False(t, limiter.IsLimited(context.Background(), "client"),
			"limiter must not reject when its store is down")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(newFakeCounterStore(), 0, 0)
	assert.Equal(t, 10, limiter.max)
	assert.Equal(t, time.Minute, limiter.window)
}
