package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache decorates a Provider with a TTL-bounded Redis cache. Cache
// failures are soft: a miss or a Redis error falls through to the inner
// provider and the result is cached best-effort.
type RedisCache struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

func NewRedisCache(inner Provider, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisCache {
	return &RedisCache{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "history_cache").Logger(),
	}
}

func cacheKey(asset string) string {
	return fmt.Sprintf("hitherto:returns:%s", asset)
}

func (c *RedisCache) Returns(ctx context.Context, asset string) ([]float64, error) {
	key := cacheKey(asset)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var out []float64
		if jsonErr := json.Unmarshal(raw, &out); jsonErr == nil {
			return out, nil
		}
		c.log.Warn().Str("asset", asset).Msg("corrupt cache entry, refetching")
	} else if err != redis.Nil {
		c.log.Warn().Err(err).Str("asset", asset).Msg("cache read failed")
	}

	out, err := c.inner.Returns(ctx, asset)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("asset", asset).Msg("cache write failed")
		}
	}
	return out, nil
}
