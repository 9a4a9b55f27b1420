package ctdf

import (
	"errors"
	"fmt"
	"math"
	"time"

	iso8601 "github.com/senseyeio/duration"
)

const defaultPassengerLifetime = "PT30M"

var ErrInvalidSpawnConfig = errors.New("invalid spawn config")

// SpawnConfig holds the arrival rate multipliers for a single route or depot.
// DayMultiplier is indexed Monday first (0 = Monday, 6 = Sunday).
type SpawnConfig struct {
	EntityRef string `groups:"basic" bson:"entityref"`

	SpatialBase   float64     `groups:"basic" bson:"spatialbase"`
	HourlyRate    [24]float64 `groups:"detailed" bson:"hourlyrate"`
	DayMultiplier [7]float64  `groups:"detailed" bson:"daymultiplier"`

	MinWindowSpawns int `groups:"basic" bson:"minwindowspawns"`
	MaxWindowSpawns int `groups:"basic" bson:"maxwindowspawns"`

	// ISO-8601 duration a passenger waits before expiring, eg. PT30M
	PassengerLifetime string `groups:"basic" bson:"passengerlifetime"`

	IsDefault bool `groups:"internal" bson:"-"`
}

// DefaultSpawnConfig is used whenever an entity has no config or an invalid one.
//
//	hours 00-05  0.0-0.2  overnight
//	hours 07-09  1.6-2.0  morning peak
//	hours 10-15  0.8-1.0  inter-peak
//	hours 16-18  1.6-1.9  evening peak
//	hours 19-23  0.3-0.6  evening
//
// Weekdays run at 1.0, Saturday 0.8, Sunday 0.6.
func DefaultSpawnConfig() *SpawnConfig {
	return &SpawnConfig{
		SpatialBase: 4.0,
		HourlyRate: [24]float64{
			0.05, 0.0, 0.0, 0.0, 0.05, 0.2,
			0.6, 1.6, 2.0, 1.6, 1.0, 0.9,
			1.0, 0.9, 0.8, 1.0, 1.6, 1.9,
			1.6, 0.6, 0.5, 0.4, 0.3, 0.2,
		},
		DayMultiplier:     [7]float64{1.0, 1.0, 1.0, 1.0, 1.0, 0.8, 0.6},
		MinWindowSpawns:   0,
		MaxWindowSpawns:   30,
		PassengerLifetime: defaultPassengerLifetime,
		IsDefault:         true,
	}
}

func (c *SpawnConfig) Validate() error {
	if c == nil {
		return ErrInvalidSpawnConfig
	}
	if c.SpatialBase < 0 || math.IsNaN(c.SpatialBase) || math.IsInf(c.SpatialBase, 0) {
		return fmt.Errorf("%w: spatial base %f", ErrInvalidSpawnConfig, c.SpatialBase)
	}
	for hour, rate := range c.HourlyRate {
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return fmt.Errorf("%w: hourly rate %d is %f", ErrInvalidSpawnConfig, hour, rate)
		}
	}
	for day, multiplier := range c.DayMultiplier {
		if multiplier < 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
			return fmt.Errorf("%w: day multiplier %d is %f", ErrInvalidSpawnConfig, day, multiplier)
		}
	}
	if c.MinWindowSpawns < 0 || c.MaxWindowSpawns < 0 || c.MinWindowSpawns > c.MaxWindowSpawns {
		return fmt.Errorf("%w: window spawns %d-%d", ErrInvalidSpawnConfig, c.MinWindowSpawns, c.MaxWindowSpawns)
	}
	if c.PassengerLifetime != "" {
		if _, err := iso8601.ParseISO8601(c.PassengerLifetime); err != nil {
			return fmt.Errorf("%w: passenger lifetime %s", ErrInvalidSpawnConfig, c.PassengerLifetime)
		}
	}

	return nil
}

// ExpiryFor returns when a passenger spawned at spawnTime gives up waiting.
// Always strictly after spawnTime.
func (c *SpawnConfig) ExpiryFor(spawnTime time.Time) time.Time {
	lifetime := c.PassengerLifetime
	if lifetime == "" {
		lifetime = defaultPassengerLifetime
	}

	duration, err := iso8601.ParseISO8601(lifetime)
	if err != nil {
		duration, _ = iso8601.ParseISO8601(defaultPassengerLifetime)
	}

	expiresAt := duration.Shift(spawnTime)
	if !expiresAt.After(spawnTime) {
		expiresAt = spawnTime.Add(time.Minute)
	}

	return expiresAt
}

// DayIndex maps a time onto the Monday first DayMultiplier index
func DayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
