package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCounterStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMemoryCounterStore() *memoryCounterStore {
	return &memoryCounterStore{counts: map[string]int64{}}
}

func (s *memoryCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}

func newTestLimiter(store CounterStore, failOpen bool) *Limiter {
	return NewLimiter(store, time.Minute, map[string]int64{"standard": 3, "premium": 5}, failOpen)
}

func TestLimiterAllowsUpToCeiling(t *testing.T) {
	limiter := newTestLimiter(newMemoryCounterStore(), false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, 1, "standard")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "attempt %d should pass", i+1)
		assert.Equal(t, int64(2-i), result.Remaining)
	}

	result, err := limiter.Check(ctx, 1, "standard")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
}

func TestLimiterIsolatesAccountsAndTiers(t *testing.T) {
	limiter := newTestLimiter(newMemoryCounterStore(), false)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		limiter.Check(ctx, 1, "standard")
	}

	// Another account is unaffected.
	result, err := limiter.Check(ctx, 2, "standard")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	// The same account on another tier has its own counter.
	result, err = limiter.Check(ctx, 1, "premium")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterWindowRollover(t *testing.T) {
	limiter := newTestLimiter(newMemoryCounterStore(), false)
	ctx := context.Background()

	current := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	for i := 0; i < 4; i++ {
		limiter.Check(ctx, 1, "standard")
	}
	result, err := limiter.Check(ctx, 1, "standard")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC), result.ResetAt)

	// Next minute, fresh window.
	current = current.Add(time.Minute)
	result, err = limiter.Check(ctx, 1, "standard")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterFailClosedByDefault(t *testing.T) {
	store := newMemoryCounterStore()
	store.err = errors.New("connection refused")
	limiter := newTestLimiter(store, false)

	result, err := limiter.Check(context.Background(), 1, "standard")
	require.NoError(t, err, "store failures resolve to policy, not errors")
	assert.False(t, result.Allowed)
}

func TestLimiterFailOpenOverride(t *testing.T) {
	store := newMemoryCounterStore()
	store.err = errors.New("connection refused")
	limiter := newTestLimiter(store, true)

	result, err := limiter.Check(context.Background(), 1, "standard")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterUnknownTierFallsBackToStandardCeiling(t *testing.T) {
	limiter := newTestLimiter(newMemoryCounterStore(), false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, 1, "mystery")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
	result, err := limiter.Check(ctx, 1, "mystery")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}
