package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores a region under a key prefix in Redis
type RedisKV struct {
	redis  *redis.Client
	prefix string
}

// NewRedisKV creates a region backed by rdb. Keys are namespaced by prefix.
func NewRedisKV(rdb *redis.Client, prefix string) *RedisKV {
	return &RedisKV{
		redis:  rdb,
		prefix: prefix,
	}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.redis.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.redis.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, r.prefix+key).Err()
}
