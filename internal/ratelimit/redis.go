package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "forms:ratelimit:"

// RedisStore keeps one sorted set of submission timestamps per client,
// scored by epoch millis. Use it when the service runs as more than one
// instance and the quota has to hold across all of them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Conn dials redis and verifies the connection.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", host, port, err)
	}
	return client, nil
}

// Count drops entries outside the window, then counts what is left.
func (s *RedisStore) Count(ctx context.Context, clientID string, now time.Time, window time.Duration) (int, error) {
	key := redisKeyPrefix + clientID
	cutoff := now.Add(-window).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit count: %w", err)
	}
	return int(card.Val()), nil
}

// member builds a unique set member for one submission. The timestamp alone
// would collapse two submissions landing in the same millisecond into one
// entry and undercount the quota.
func member(now time.Time) string {
	return fmt.Sprintf("%d:%s", now.UnixMilli(), uuid.NewString())
}

// Record adds now to the client's set and refreshes the key's expiry so
// idle clients age out on their own.
func (s *RedisStore) Record(ctx context.Context, clientID string, now time.Time) error {
	key := redisKeyPrefix + clientID

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member(now)})
	pipe.Expire(ctx, key, 2*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit record: %w", err)
	}
	return nil
}
