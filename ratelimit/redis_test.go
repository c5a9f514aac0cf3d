package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, limit int, clock *testClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, limit, time.Hour)
	s.now = clock.Now
	return s, mr
}

func TestRedisStore_FixedWindow(t *testing.T) {
	clock := newClock()
	s, _ := newTestRedisStore(t, 2, clock)
	ctx := context.Background()
	start := clock.Now()

	for i := 1; i <= 2; i++ {
		d, err := s.CheckAndConsume(ctx, "1.1.1.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
		assert.True(t, d.WindowStart.Equal(start))
		clock.Advance(5 * time.Minute)
	}

	d, err := s.CheckAndConsume(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, 50*time.Minute, d.RetryAfter(clock.Now()))

	clock.Advance(time.Hour)
	d, err = s.CheckAndConsume(ctx, "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisStore_KeyExpiresWithWindow(t *testing.T) {
	clock := newClock()
	s, mr := newTestRedisStore(t, 2, clock)

	_, err := s.CheckAndConsume(context.Background(), "ttl")
	require.NoError(t, err)

	ttl := mr.TTL(redisKeyPrefix + "ttl")
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(time.Hour)
	assert.False(t, mr.Exists(redisKeyPrefix+"ttl"))
}

func TestRedisStore_Release(t *testing.T) {
	clock := newClock()
	s, _ := newTestRedisStore(t, 1, clock)
	ctx := context.Background()

	d, err := s.CheckAndConsume(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, d))

	d, err = s.CheckAndConsume(ctx, "r")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisStore_ReleaseOfOldWindowIsNoop(t *testing.T) {
	clock := newClock()
	s, _ := newTestRedisStore(t, 2, clock)
	ctx := context.Background()

	old, err := s.CheckAndConsume(ctx, "r")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = s.CheckAndConsume(ctx, "r")
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, old))
	d, err := s.CheckAndConsume(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Count)
}

func TestRedisStore_DistinctKeys(t *testing.T) {
	clock := newClock()
	s, _ := newTestRedisStore(t, 1, clock)
	ctx := context.Background()

	a, err := s.CheckAndConsume(ctx, "a")
	require.NoError(t, err)
	b, err := s.CheckAndConsume(ctx, "b")
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
}

func TestNewRedisStoreFromAddr_Unreachable(t *testing.T) {
	_, err := NewRedisStoreFromAddr("127.0.0.1:1", "", 0, 1, time.Hour)
	assert.Error(t, err)
}
