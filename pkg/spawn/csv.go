package spawn

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/travigo/ridership/pkg/ctdf"
)

// FloatList is a pipe separated list of numbers in a single CSV column, eg. 1.0|0.8|0.6
type FloatList []float64

func (f *FloatList) UnmarshalCSV(value string) error {
	*f = nil

	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, part := range strings.Split(value, "|") {
		number, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return err
		}
		*f = append(*f, number)
	}

	return nil
}

type spawnConfigRow struct {
	EntityRef         string    `csv:"entity_id"`
	SpatialBase       float64   `csv:"spatial_base"`
	HourlyRate        FloatList `csv:"hourly_rate"`
	DayMultiplier     FloatList `csv:"day_multiplier"`
	MinWindowSpawns   int       `csv:"min_window_spawns"`
	MaxWindowSpawns   int       `csv:"max_window_spawns"`
	PassengerLifetime string    `csv:"passenger_lifetime"`
}

func (r *spawnConfigRow) toSpawnConfig() (*ctdf.SpawnConfig, error) {
	if len(r.HourlyRate) != 24 {
		return nil, fmt.Errorf("%s: hourly_rate needs 24 values, got %d", r.EntityRef, len(r.HourlyRate))
	}
	if len(r.DayMultiplier) != 7 {
		return nil, fmt.Errorf("%s: day_multiplier needs 7 values, got %d", r.EntityRef, len(r.DayMultiplier))
	}

	config := &ctdf.SpawnConfig{
		EntityRef:         r.EntityRef,
		SpatialBase:       r.SpatialBase,
		MinWindowSpawns:   r.MinWindowSpawns,
		MaxWindowSpawns:   r.MaxWindowSpawns,
		PassengerLifetime: r.PassengerLifetime,
	}
	copy(config.HourlyRate[:], r.HourlyRate)
	copy(config.DayMultiplier[:], r.DayMultiplier)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", r.EntityRef, err)
	}

	return config, nil
}

// ParseConfigCSV reads one SpawnConfig per row
func ParseConfigCSV(reader io.Reader) ([]*ctdf.SpawnConfig, error) {
	var rows []*spawnConfigRow
	if err := gocsv.Unmarshal(reader, &rows); err != nil {
		return nil, err
	}

	configs := make([]*ctdf.SpawnConfig, 0, len(rows))
	for _, row := range rows {
		config, err := row.toSpawnConfig()
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}

	return configs, nil
}

func LoadConfigCSV(path string) ([]*ctdf.SpawnConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseConfigCSV(file)
}
