package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopDenylist(t *testing.T) {
	var d Denylist = NopDenylist{}
	require.NoError(t, d.Revoke(context.Background(), "jti", time.Now().Add(time.Hour)))
	revoked, err := d.IsRevoked(context.Background(), "jti")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisDenylist(t *testing.T) {
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

	d := NewRedisDenylist(client)
	d.prefix = "test:auth:revoked:"

	require.NoError(t, d.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	defer client.Del(ctx, d.prefix+"jti-1")

	revoked, err := d.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = d.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	// already-expired tokens are not written
	require.NoError(t, d.Revoke(ctx, "jti-3", time.Now().Add(-time.Minute)))
	revoked, err = d.IsRevoked(ctx, "jti-3")
	require.NoError(t, err)
	assert.False(t, revoked)

	ttl, err := client.TTL(ctx, d.prefix+"jti-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
