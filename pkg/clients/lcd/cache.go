package lcd

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const denomCacheKeyPrefix = "ibc_tracker:denom:"

// CachedResolver memoises successful resolutions in Redis. Redis failures
// fall through to the wrapped resolver; failed resolutions are never cached.
type CachedResolver struct {
	next   DenomResolver
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCachedResolver(next DenomResolver, client redis.UniversalClient, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl}
}

func denomCacheKey(gateway, ibcHash string) string {
	return denomCacheKeyPrefix + strings.TrimRight(gateway, "/") + ":" + strings.TrimPrefix(ibcHash, "ibc/")
}

func (c *CachedResolver) ResolveDenom(ctx context.Context, gateway, ibcHash string) (string, error) {
	key := denomCacheKey(gateway, ibcHash)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("[CachedResolver] [ResolveDenom] cache read failed")
	}

	baseDenom, err := c.next.ResolveDenom(ctx, gateway, ibcHash)
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, key, baseDenom, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("[CachedResolver] [ResolveDenom] cache write failed")
	}
	return baseDenom, nil
}
