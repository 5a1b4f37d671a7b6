package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestClaim(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	existing, claimed, err := Claim(ctx, rdb, "idem:checkout:k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, existing)

	require.NoError(t, rdb.Set(ctx, "idem:checkout:k1", "order-9", time.Minute).Err())

	existing, claimed, err = Claim(ctx, rdb, "idem:checkout:k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-9", existing)
}

func TestMarkSeen(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	first, err := MarkSeen(ctx, rdb, "reconciler", "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = MarkSeen(ctx, rdb, "reconciler", "evt-1")
	require.NoError(t, err)
	assert.False(t, first)
}

func TestStatusCache(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	s, err := CachedStatus(ctx, rdb, "o1")
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, CacheStatus(ctx, rdb, "o1", "READY", time.Now()))
	s, err = CachedStatus(ctx, rdb, "o1")
	require.NoError(t, err)
	assert.Equal(t, "READY", s)

	mr.FastForward(TTLStatusCache + time.Second)
	s, err = CachedStatus(ctx, rdb, "o1")
	require.NoError(t, err)
	assert.Empty(t, s)
}
