package api

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReserver stores reserved task ids in Redis so all instances agree on
// which ids are taken.
type RedisReserver struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReserver creates a reserver using the provided Redis client and TTL.
func NewRedisReserver(client *redis.Client, ttl time.Duration) *RedisReserver {
	return &RedisReserver{client: client, ttl: ttl}
}

func (r *RedisReserver) key(taskID int64) string {
	return "taskid:" + strconv.FormatInt(taskID, 10)
}

func (r *RedisReserver) Reserve(ctx context.Context, taskID int64) (bool, error) {
	return r.client.SetNX(ctx, r.key(taskID), 1, r.ttl).Result()
}

func (r *RedisReserver) Release(ctx context.Context, taskID int64) error {
	return r.client.Del(ctx, r.key(taskID)).Err()
}
