package reservoir

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = 30 * time.Second

const sweepBatchSize = 500

// Sweeper periodically expires passengers nobody picked up
type Sweeper struct {
	Reservoir *Reservoir
	Interval  time.Duration
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires everything overdue in batches and returns the total expired
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	now := s.Reservoir.now()

	for ctx.Err() == nil {
		expired, err := s.Reservoir.ExpireSweep(ctx, now, sweepBatchSize)
		if err != nil {
			log.Error().Err(err).Msg("Expiry sweep failed")
			break
		}

		total += expired
		if expired < sweepBatchSize {
			break
		}
	}

	if total > 0 {
		log.Info().Int("expired", total).Msg("Expired waiting passengers")
	}

	return total
}
