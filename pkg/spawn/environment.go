package spawn

import (
	"time"

	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/travigo/ridership/pkg/util"
)

type Config struct {
	Window            time.Duration
	Interval          time.Duration
	MaxBacklog        int64
	ConfigTTL         time.Duration
	PassengerLifetime string
	DestinationPolicy string
}

func GetConfig() Config {
	env := util.GetEnvironmentVariables()

	return Config{
		Window:            util.EnvDuration(env, "RIDERSHIP_SPAWN_WINDOW", DefaultWindow),
		Interval:          util.EnvDuration(env, "RIDERSHIP_SPAWN_INTERVAL", DefaultInterval),
		MaxBacklog:        int64(util.EnvInt(env, "RIDERSHIP_SPAWN_MAX_BACKLOG", DefaultMaxBacklog)),
		ConfigTTL:         util.EnvDuration(env, "RIDERSHIP_SPAWN_CONFIG_TTL", DefaultConfigTTL),
		PassengerLifetime: util.EnvString(env, "RIDERSHIP_PASSENGER_LIFETIME", "PT30M"),
		DestinationPolicy: util.EnvString(env, "RIDERSHIP_DESTINATION_POLICY", "uniform"),
	}
}

// NewMongoGenerator wires a generator to the mongo backed metadata and spawn configs,
// with configs cached in redis when it is connected
func NewMongoGenerator(config Config, reservoir Pusher, publisher events.Publisher) (*DemandGenerator, error) {
	destinations, err := NewDestinationStrategy(config.DestinationPolicy)
	if err != nil {
		return nil, err
	}

	var configs ConfigProvider = NewMongoConfigProvider()
	if redis_client.Client != nil {
		configs = NewCachedConfigProvider(configs, redis_client.Client, config.ConfigTTL)
	}

	metadataProvider := metadata.NewMongoProvider()

	return &DemandGenerator{
		Rates:           NewRateCalculator(configs),
		Metadata:        metadataProvider,
		Geometries:      metadata.NewGeometryIndex(metadataProvider),
		Destinations:    destinations,
		Sampler:         NewTimeSeededSampler(),
		Reservoir:       reservoir,
		Events:          publisher,
		DefaultLifetime: config.PassengerLifetime,
	}, nil
}
