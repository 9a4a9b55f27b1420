package reservoir

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/ridership/pkg/ctdf"
)

func TestCacheBuckets(t *testing.T) {
	cache := &Cache{CellMeters: 250}

	assert.Equal(t, 0, cache.Bucket(0))
	assert.Equal(t, 0, cache.Bucket(249.9))
	assert.Equal(t, 1, cache.Bucket(250))
	assert.Equal(t, -1, cache.Bucket(-1))

	min, max := cache.BucketRange(2)
	assert.Equal(t, 500.0, min)
	assert.Equal(t, 750.0, max)

	assert.Equal(t, "ridership:reservoir:route:route-1:1", cache.KeyFor(routePassenger("a", "route-1", 300, ctdf.PassengerDirectionOutbound)))
	assert.Equal(t, "ridership:reservoir:depot:depot-1", cache.KeyFor(depotPassenger("b", "depot-1", "route-1", testNow)))
}

func TestCacheExpiresAndInvalidates(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()
	key := cache.RouteKey("route-1", 0)

	_, hit := cache.Get(ctx, key)
	assert.False(t, hit)

	cache.Set(ctx, key, []*ctdf.PassengerRecord{routePassenger("a", "route-1", 10, ctdf.PassengerDirectionOutbound)})

	records, hit := cache.Get(ctx, key)
	require.True(t, hit)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].PrimaryIdentifier)
	assert.True(t, records[0].SpawnTime.Equal(testNow.Add(-5*time.Minute)))

	server.FastForward(6 * time.Second)
	_, hit = cache.Get(ctx, key)
	assert.False(t, hit, "entry should be gone after the TTL")

	cache.Set(ctx, key, nil)
	records, hit = cache.Get(ctx, key)
	assert.True(t, hit, "an empty bucket is still a cached answer")
	assert.Empty(t, records)

	cache.Invalidate(ctx, key, key)
	_, hit = cache.Get(ctx, key)
	assert.False(t, hit)
}

func TestCacheMissOnGarbage(t *testing.T) {
	cache, server := newTestCache(t)
	key := cache.DepotKey("depot-1")

	require.NoError(t, server.Set(key, "not json"))

	_, hit := cache.Get(context.Background(), key)
	assert.False(t, hit)
}
