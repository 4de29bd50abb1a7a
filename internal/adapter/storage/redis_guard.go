package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const settlingKeyPrefix = "settling:"

// RedisGuard is the advisory per-order in-flight lock. The TTL keeps a
// crashed worker from holding an order forever; the durable markers in MySQL
// keep the engine correct if two workers slip past the guard anyway.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, orderID int64) (bool, error) {
	key := fmt.Sprintf("%s%d", settlingKeyPrefix, orderID)
	ok, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, orderID int64) error {
	key := fmt.Sprintf("%s%d", settlingKeyPrefix, orderID)
	return g.client.Del(ctx, key).Err()
}
