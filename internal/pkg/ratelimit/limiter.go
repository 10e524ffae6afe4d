package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NovaForgeApp/NovaForge/internal/pkg/cache"
	"github.com/NovaForgeApp/NovaForge/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Result reports a window check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// CounterStore is the windowed counter backend. Incr must atomically bump
// the key and arm its expiry on first use.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type redisCounterStore struct{}

func (redisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := cache.GetClient().Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := cache.GetClient().Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Limiter is a fixed-window counter per account and tier. When the counter
// store is unreachable it fails closed unless explicitly configured to fail
// open: on the money path, refusing work is safer than uncounted work.
type Limiter struct {
	store    CounterStore
	window   time.Duration
	ceilings map[string]int64
	failOpen bool
	now      func() time.Time
}

// NewLimiter wires a limiter with explicit policy.
func NewLimiter(store CounterStore, window time.Duration, ceilings map[string]int64, failOpen bool) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:    store,
		window:   window,
		ceilings: ceilings,
		failOpen: failOpen,
		now:      time.Now,
	}
}

// NewLimiterFromEnv builds the redis-backed limiter with per-tier ceilings
// from the environment.
func NewLimiterFromEnv() *Limiter {
	ceilings := map[string]int64{
		"standard": envInt64("RATE_LIMIT_PER_MINUTE", 10),
		"premium":  envInt64("RATE_LIMIT_PREMIUM_PER_MINUTE", 30),
	}
	failOpen := env.GetEnv("RATE_LIMIT_FAIL_OPEN", "false") == "true"
	return NewLimiter(redisCounterStore{}, time.Minute, ceilings, failOpen)
}

// Check counts one attempt against the account's window and reports whether
// it may proceed. A store failure never returns an error; it resolves to the
// configured fail-open/fail-closed policy.
func (l *Limiter) Check(ctx context.Context, accountID uint, tier string) (Result, error) {
	ceiling := l.ceilingFor(tier)
	windowStart := l.now().Truncate(l.window)
	resetAt := windowStart.Add(l.window)
	key := fmt.Sprintf("ratelimit:gen:%d:%s:%d", accountID, tier, windowStart.Unix())

	count, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		log.Warnf("rate limit counter unavailable (fail_open=%v): %v", l.failOpen, err)
		return Result{Allowed: l.failOpen, Remaining: 0, ResetAt: resetAt}, nil
	}

	remaining := ceiling - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= ceiling,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (l *Limiter) ceilingFor(tier string) int64 {
	if ceiling, ok := l.ceilings[tier]; ok {
		return ceiling
	}
	if ceiling, ok := l.ceilings["standard"]; ok {
		return ceiling
	}
	return 10
}

func envInt64(key string, def int64) int64 {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
