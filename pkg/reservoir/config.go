package reservoir

import (
	"time"

	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/travigo/ridership/pkg/util"
)

type Config struct {
	CacheTTL        time.Duration
	CacheCellMeters float64
	StoreTimeout    time.Duration
	SweepInterval   time.Duration
	MaxLookahead    float64
}

func GetConfig() Config {
	env := util.GetEnvironmentVariables()

	return Config{
		CacheTTL:        util.EnvDuration(env, "RIDERSHIP_CACHE_TTL", DefaultCacheTTL),
		CacheCellMeters: util.EnvFloat(env, "RIDERSHIP_CACHE_CELL_METERS", DefaultCacheCellMeters),
		StoreTimeout:    util.EnvDuration(env, "RIDERSHIP_STORE_TIMEOUT", DefaultStoreTimeout),
		SweepInterval:   util.EnvDuration(env, "RIDERSHIP_SWEEP_INTERVAL", DefaultSweepInterval),
		MaxLookahead:    util.EnvFloat(env, "RIDERSHIP_MAX_LOOKAHEAD_METERS", DefaultMaxLookahead),
	}
}

// NewMongoReservoir builds the production reservoir on the shared database and redis connections.
// The cache is skipped when redis has not been connected.
func NewMongoReservoir(config Config, publisher events.Publisher) *Reservoir {
	var cache *Cache
	if redis_client.Client != nil {
		cache = NewCache(redis_client.Client, config.CacheTTL, config.CacheCellMeters)
	}

	reservoir := NewReservoir(NewMongoStore(), cache, publisher, config.StoreTimeout)
	reservoir.MaxLookahead = config.MaxLookahead

	return reservoir
}
