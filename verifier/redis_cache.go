package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "toolfi:payment:"

// RedisCache shares verified payments between gate processes. SETNX gives
// first-writer-wins across processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps client; ttl of zero keeps entries forever.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisCacheFromURL parses a redis:// URL and connects lazily.
func NewRedisCacheFromURL(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), ttl), nil
}

func (c *RedisCache) Get(ctx context.Context, ref string) (Payment, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+ref).Bytes()
	if errors.Is(err, redis.Nil) {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, fmt.Errorf("redis get %s: %w", ref, err)
	}
	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payment{}, false, fmt.Errorf("decode cached payment %s: %w", ref, err)
	}
	return p, true, nil
}

func (c *RedisCache) PutIfAbsent(ctx context.Context, ref string, p Payment) (Payment, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Payment{}, fmt.Errorf("encode payment %s: %w", ref, err)
	}
	stored, err := c.client.SetNX(ctx, redisKeyPrefix+ref, raw, c.ttl).Result()
	if err != nil {
		return Payment{}, fmt.Errorf("redis setnx %s: %w", ref, err)
	}
	if stored {
		return p, nil
	}
	winner, ok, err := c.Get(ctx, ref)
	if err != nil {
		return Payment{}, err
	}
	if !ok {
		// The winner expired between SETNX and GET; ours is as good as any.
		return c.PutIfAbsent(ctx, ref, p)
	}
	return winner, nil
}

// Close releases the redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
