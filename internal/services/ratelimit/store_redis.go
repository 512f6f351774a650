package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore keeps windowed counters as Redis keys with TTLs. INCR gives
// the per-identity atomicity; expiry of the window is the key's TTL, so
// DeleteExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var incrementScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	local ttl = redis.call("PTTL", KEYS[1])
	return {count, ttl}
`)

func (s *RedisStore) Increment(ctx context.Context, identityHash string, now time.Time, window time.Duration) (int, time.Time, error) {
	res, err := incrementScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + identityHash}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	count := int(res[0])
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return count, now.Add(ttl), nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
