package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedProvider memoizes reverse-geocode results in redis, keyed on
// the coordinate rounded to 6 decimal places. Stationary devices
// resolve the same centroid day after day; the cache spares the place
// index those repeat lookups. Cache failures degrade to the inner
// provider, never to an error. Empty results are not cached.
type CachedProvider struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedProvider wraps a provider with a redis-backed cache.
func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("geocode:%.6f,%.6f", lat, lon)
}

// ReverseGeocode consults the cache before the inner provider.
func (c *CachedProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*Place, error) {
	key := cacheKey(lat, lon)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var place Place
		if err := json.Unmarshal(raw, &place); err == nil {
			return &place, nil
		}
	} else if err != redis.Nil {
		c.log.Warn().Str("event", "geocode_cache_get_error").Err(err).Send()
	}

	place, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil || place == nil {
		return place, err
	}

	if raw, err := json.Marshal(place); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn().Str("event", "geocode_cache_set_error").Err(err).Send()
		}
	}
	return place, nil
}
