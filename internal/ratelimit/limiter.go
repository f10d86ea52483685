// Package ratelimit throttles requests with a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims expired entries, then admits the request when fewer
// than limit remain in the window. Returns {allowed, remaining, resetAtMs}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return {1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_at = 0
	if oldest and #oldest >= 2 then
		reset_at = tonumber(oldest[2]) + window_ms
	end
	return {0, 0, reset_at}
`)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Limiter implements sliding window rate limiting on Redis sorted sets.
type Limiter struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

func NewLimiter(client *redis.Client, keyPrefix string) *Limiter {
	return &Limiter{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// Allow records a request for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := l.now()
	windowMs := window.Milliseconds()

	values, err := slidingWindow.Run(ctx, l.client, []string{l.keyPrefix + key},
		now.UnixMilli(),
		now.Add(-window).UnixMilli(),
		limit,
		windowMs,
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected rate limit response length %d", len(values))
	}

	resetAt := now.Add(window)
	if values[2] > 0 {
		resetAt = time.UnixMilli(values[2])
	}
	return Result{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		Limit:     limit,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	prefixed := l.keyPrefix + key
	return l.client.Del(ctx, prefixed, prefixed+":counter").Err()
}
