package spawn

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/util"
)

var (
	ErrConfigMissing   = errors.New("spawn config missing")
	ErrInvalidGeometry = ctdf.ErrInvalidGeometry
)

var configWarnings = util.NewRateLimitedLogger(1, 10*time.Minute)

// RateCalculator turns an entity's SpawnConfig into the expected number of arrivals for a window
type RateCalculator struct {
	Configs ConfigProvider
}

func NewRateCalculator(configs ConfigProvider) *RateCalculator {
	return &RateCalculator{Configs: configs}
}

// Config never fails, a missing or invalid config is replaced by the default table
func (r *RateCalculator) Config(ctx context.Context, entityRef string) *ctdf.SpawnConfig {
	if r.Configs == nil {
		return ctdf.DefaultSpawnConfig()
	}

	config, err := r.Configs.GetSpawnConfig(ctx, entityRef)
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		logger := configWarnings.For(entityRef)
		logger.Warn().Err(err).Str("entity", entityRef).Msg("Falling back to default spawn config")

		return ctdf.DefaultSpawnConfig()
	}

	return config
}

// Rate is λ for entityRef over a window of windowMinutes starting at timestamp
func (r *RateCalculator) Rate(ctx context.Context, entityRef string, timestamp time.Time, windowMinutes float64) float64 {
	return Lambda(r.Config(ctx, entityRef), timestamp, windowMinutes)
}

// Lambda is spatial_base x hourly_rate[hour] x day_multiplier[weekday] x window/60,
// clamped to [0, MaxWindowSpawns]. MinWindowSpawns only lifts a non zero rate.
func Lambda(config *ctdf.SpawnConfig, timestamp time.Time, windowMinutes float64) float64 {
	if config == nil || windowMinutes <= 0 || math.IsNaN(windowMinutes) {
		return 0
	}

	lambda := config.SpatialBase *
		config.HourlyRate[timestamp.Hour()] *
		config.DayMultiplier[ctdf.DayIndex(timestamp)] *
		(windowMinutes / 60)

	if lambda <= 0 || math.IsNaN(lambda) {
		return 0
	}
	if lambda < float64(config.MinWindowSpawns) {
		lambda = float64(config.MinWindowSpawns)
	}
	if lambda > float64(config.MaxWindowSpawns) {
		lambda = float64(config.MaxWindowSpawns)
	}

	return lambda
}
