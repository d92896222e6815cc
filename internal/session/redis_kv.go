package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores session keys as plain Redis strings under a namespace prefix.
type RedisKV struct {
	client    *redis.Client
	namespace string
}

// NewRedisKV builds a Redis-backed KV.
func NewRedisKV(client *redis.Client, namespace string) *RedisKV {
	return &RedisKV{client: client, namespace: namespace}
}

// Get fetches all keys in one MGET.
func (r *RedisKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.client.MGet(ctx, r.prefixed(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

// Set writes all values in one MSET, which Redis applies atomically.
func (r *RedisKV) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, r.namespace+k, v)
	}
	if err := r.client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

// Delete removes keys in one DEL.
func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, r.prefixed(keys)...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisKV) prefixed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = r.namespace + k
	}
	return out
}
