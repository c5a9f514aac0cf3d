package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "suggest:quota:"

// consumeScript is the fixed-window check-and-increment.
// KEYS[1] quota hash; ARGV limit, window ms, now ms.
// Returns {allowed, count, windowStartMs}.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local start = tonumber(redis.call('HGET', key, 'start') or '0')
local count = tonumber(redis.call('HGET', key, 'count') or '0')
if now - start >= window then
	start = now
	count = 0
end
if count >= limit then
	return {0, count, start}
end
count = count + 1
redis.call('HSET', key, 'start', start, 'count', count)
redis.call('PEXPIRE', key, start + window - now)
return {1, count, start}
`)

// releaseScript decrements the count only while the window that issued the
// slot is still open. ARGV[1] is that window's start in ms.
var releaseScript = redis.NewScript(`
local start = redis.call('HGET', KEYS[1], 'start')
if start and tonumber(start) == tonumber(ARGV[1]) then
	local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
	if count > 0 then
		redis.call('HINCRBY', KEYS[1], 'count', -1)
	end
end
return 1
`)

// RedisStore keeps quota records in Redis so several instances share one quota.
// Keys expire when their window closes.
type RedisStore struct {
	client redis.Scripter
	closer func() error
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.Scripter, limit int, window time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// NewRedisStoreFromAddr dials addr and verifies the connection.
func NewRedisStoreFromAddr(addr, password string, db, limit int, window time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		PoolTimeout:  4 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	s := NewRedisStore(rdb, limit, window)
	s.closer = rdb.Close
	return s, nil
}

func (s *RedisStore) CheckAndConsume(ctx context.Context, key string) (Decision, error) {
	now := s.now()
	res, err := consumeScript.Run(ctx, s.client, []string{redisKeyPrefix + key},
		s.limit, s.window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("consume quota for %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("consume quota for %s: unexpected script reply %v", key, res)
	}

	start := time.UnixMilli(res[2])
	return Decision{
		Key:         key,
		Allowed:     res[0] == 1,
		Count:       int(res[1]),
		Limit:       s.limit,
		WindowStart: start,
		ResetAt:     start.Add(s.window),
	}, nil
}

func (s *RedisStore) Release(ctx context.Context, d Decision) error {
	if !d.Allowed {
		return nil
	}
	err := releaseScript.Run(ctx, s.client, []string{redisKeyPrefix + d.Key}, d.WindowStart.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("release quota for %s: %w", d.Key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
