package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
)

// WaitingCounter reports how many passengers are waiting at a route or depot
type WaitingCounter interface {
	CountWaiting(ctx context.Context, entityType ctdf.PassengerEntityType, entityRef string) (int64, error)
}

type ReservoirStats struct {
	Routes map[string]int64 `json:"routes"`
	Depots map[string]int64 `json:"depots"`

	TotalWaiting int64     `json:"total_waiting"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var currentReservoirStats atomic.Pointer[ReservoirStats]

func CurrentReservoirStats() *ReservoirStats {
	if current := currentReservoirStats.Load(); current != nil {
		return current
	}
	return &ReservoirStats{
		Routes: map[string]int64{},
		Depots: map[string]int64{},
	}
}

// UpdateReservoirStats refreshes the waiting counts every interval until the context is cancelled
func UpdateReservoirStats(ctx context.Context, provider metadata.Provider, counter WaitingCounter, interval time.Duration) {
	for {
		if _, err := RefreshReservoirStats(ctx, provider, counter); err != nil {
			log.Error().Err(err).Msg("Failed to refresh reservoir stats")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

type entityCount struct {
	ref   string
	depot bool
	count int64
}

func RefreshReservoirStats(ctx context.Context, provider metadata.Provider, counter WaitingCounter) (*ReservoirStats, error) {
	routes, err := provider.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	depots, err := provider.ListDepots(ctx)
	if err != nil {
		return nil, err
	}

	countPool := pool.NewWithResults[entityCount]().WithContext(ctx).WithMaxGoroutines(10)
	for _, route := range routes {
		countPool.Go(func(ctx context.Context) (entityCount, error) {
			count, err := counter.CountWaiting(ctx, ctdf.PassengerEntityRoute, route.PrimaryIdentifier)
			return entityCount{ref: route.PrimaryIdentifier, count: count}, err
		})
	}
	for _, depot := range depots {
		countPool.Go(func(ctx context.Context) (entityCount, error) {
			count, err := counter.CountWaiting(ctx, ctdf.PassengerEntityDepot, depot.PrimaryIdentifier)
			return entityCount{ref: depot.PrimaryIdentifier, depot: true, count: count}, err
		})
	}

	counts, err := countPool.Wait()
	if err != nil {
		return nil, err
	}

	reservoirStats := &ReservoirStats{
		Routes:    map[string]int64{},
		Depots:    map[string]int64{},
		UpdatedAt: time.Now(),
	}
	for _, count := range counts {
		if count.depot {
			reservoirStats.Depots[count.ref] = count.count
		} else {
			reservoirStats.Routes[count.ref] = count.count
		}
		reservoirStats.TotalWaiting += count.count
	}

	currentReservoirStats.Store(reservoirStats)

	return reservoirStats, nil
}
