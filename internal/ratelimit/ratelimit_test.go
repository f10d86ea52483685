package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/internal/logging"
)

type fakeAllower struct {
	calls int
	limit int
	err   error
	keys  []string
}

func (f *fakeAllower) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	if f.err != nil {
		return Result{}, f.err
	}
	f.calls++
	f.keys = append(f.keys, key)
	allowed := f.calls <= f.limit
	return Result{
		Allowed:   allowed,
		Remaining: max(f.limit-f.calls, 0),
		Limit:     limit,
		ResetAt:   time.Now().Add(window),
	}, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddleware_Throttles(t *testing.T) {
	limiter := &fakeAllower{limit: 2}
	h := Middleware(limiter, 2, time.Minute, nil, logging.Discard())(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"success":false,"message":"Too many requests, please try again later"}`, rec.Body.String())
	assert.Equal(t, "/api/auth/login:192.0.2.1", limiter.keys[0])
}

func TestMiddleware_FailsOpen(t *testing.T) {
	limiter := &fakeAllower{err: errors.New("connection refused")}
	h := Middleware(limiter, 1, time.Minute, nil, logging.Discard())(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestLimiter_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	limiter := NewLimiter(client, "test:ratelimit:")
	key := "client-" + time.Now().Format("150405.000000000")
	defer limiter.Reset(ctx, key)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2-i, result.Remaining)
	}

	result, err := limiter.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.True(t, result.ResetAt.After(time.Now()))
}
