package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/storekit/storefront/internal/domain/product"
)

var _ ProductCache = (*RedisCache)(nil)

// RedisCache is a ProductCache backed by Redis with a jittered TTL so a burst
// of entries does not expire all at once.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewRedisCache returns a RedisCache over the given client.
func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

func (r *RedisCache) Get(ctx context.Context, id string) (*product.Product, error) {
	data, err := r.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling cached product: %w", err)
	}
	return &p, nil
}

func (r *RedisCache) Set(ctx context.Context, p *product.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling product: %w", err)
	}

	jitter := time.Duration(rand.IntN(30)) * time.Second
	if err := r.client.Set(ctx, cacheKey(p.ID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func cacheKey(id string) string {
	return "product:" + id
}
