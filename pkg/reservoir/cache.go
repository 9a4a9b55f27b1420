package reservoir

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/stats"
)

const (
	DefaultCacheTTL        = 5 * time.Second
	DefaultCacheCellMeters = 250.0
)

// Cache is a short lived read-through copy of WAITING passengers. Route passengers are bucketed
// by the cell their arc position falls in, depot passengers by depot.
// It is never consulted for claims.
type Cache struct {
	Cache      *cache.Cache[string]
	CellMeters float64
}

func NewCache(client *redis.Client, ttl time.Duration, cellMeters float64) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cellMeters <= 0 {
		cellMeters = DefaultCacheCellMeters
	}

	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &Cache{
		Cache:      cache.New[string](redisStore),
		CellMeters: cellMeters,
	}
}

func (c *Cache) Bucket(arcPosition float64) int {
	return int(math.Floor(arcPosition / c.CellMeters))
}

// BucketRange is the arc range [min, max) a bucket covers
func (c *Cache) BucketRange(bucket int) (float64, float64) {
	return float64(bucket) * c.CellMeters, float64(bucket+1) * c.CellMeters
}

func (c *Cache) RouteKey(routeRef string, bucket int) string {
	return fmt.Sprintf("ridership:reservoir:route:%s:%d", routeRef, bucket)
}

func (c *Cache) DepotKey(depotRef string) string {
	return fmt.Sprintf("ridership:reservoir:depot:%s", depotRef)
}

// KeyFor is the bucket a record is cached under
func (c *Cache) KeyFor(record *ctdf.PassengerRecord) string {
	if record.EntityType == ctdf.PassengerEntityDepot {
		return c.DepotKey(record.EntityRef)
	}

	return c.RouteKey(record.EntityRef, c.Bucket(record.ArcPosition))
}

// Get returns the cached records for a key, any error is treated as a miss
func (c *Cache) Get(ctx context.Context, key string) ([]*ctdf.PassengerRecord, bool) {
	value, err := c.Cache.Get(ctx, key)
	if err != nil {
		stats.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var records []*ctdf.PassengerRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		stats.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	stats.CacheLookups.WithLabelValues("hit").Inc()
	return records, true
}

func (c *Cache) Set(ctx context.Context, key string, records []*ctdf.PassengerRecord) {
	if records == nil {
		records = []*ctdf.PassengerRecord{}
	}

	value, err := json.Marshal(records)
	if err != nil {
		return
	}

	if err := c.Cache.Set(ctx, key, string(value)); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to populate cache")
	}
}

// Invalidate drops whole buckets, duplicate keys are only deleted once
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	seen := map[string]bool{}

	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := c.Cache.Delete(ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Failed to invalidate cache")
		}
	}
}

func (c *Cache) InvalidateRecords(ctx context.Context, records ...*ctdf.PassengerRecord) {
	keys := make([]string, 0, len(records))
	for _, record := range records {
		keys = append(keys, c.KeyFor(record))
	}

	c.Invalidate(ctx, keys...)
}
