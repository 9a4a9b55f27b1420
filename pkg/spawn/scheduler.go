package spawn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/stats"
	"github.com/travigo/ridership/pkg/util"
)

const (
	DefaultWindow     = 15 * time.Minute
	DefaultInterval   = time.Minute
	DefaultMaxBacklog = 200
)

var geometryErrors = util.NewRateLimitedLogger(1, 10*time.Minute)

// BacklogCounter reports how many passengers are still waiting at an entity
type BacklogCounter interface {
	CountWaiting(ctx context.Context, entityType ctdf.PassengerEntityType, entityRef string) (int64, error)
}

// Scheduler generates demand for every route and depot, one window at a time per entity.
// Entities are independent, a failing entity is logged and skipped.
type Scheduler struct {
	Generator *DemandGenerator
	Metadata  metadata.Provider
	Backlog   BacklogCounter

	Window        time.Duration
	Interval      time.Duration
	MaxBacklog    int64
	MaxGoroutines int

	mutex       sync.Mutex
	nextWindows map[Entity]time.Time
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		results := s.Tick(ctx, time.Now())

		spawned := 0
		for _, result := range results {
			spawned += len(result.Records)
		}
		log.Info().Int("windows", len(results)).Int("passengers", spawned).Msg("Spawn tick complete")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Entities lists every route and depot known to the metadata provider
func (s *Scheduler) Entities(ctx context.Context) ([]Entity, error) {
	routes, err := s.Metadata.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	depots, err := s.Metadata.ListDepots(ctx)
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(routes)+len(depots))
	for _, route := range routes {
		entities = append(entities, Entity{Type: ctdf.PassengerEntityRoute, Ref: route.PrimaryIdentifier})
	}
	for _, depot := range depots {
		entities = append(entities, Entity{Type: ctdf.PassengerEntityDepot, Ref: depot.PrimaryIdentifier})
	}

	return entities, nil
}

// Tick spawns every entity whose next window has started and returns the windows spawned
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []*Result {
	entities, err := s.Entities(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list spawn entities")
		return nil
	}

	maxGoroutines := s.MaxGoroutines
	if maxGoroutines <= 0 {
		maxGoroutines = 10
	}

	p := pool.NewWithResults[*Result]().WithMaxGoroutines(maxGoroutines)
	for _, entity := range entities {
		p.Go(func() *Result {
			defer func() {
				if recovered := recover(); recovered != nil {
					log.Error().Str("entity", entity.String()).Interface("panic", recovered).Msg("Spawning panicked")
				}
			}()

			return s.spawnEntity(ctx, entity, now)
		})
	}

	var results []*Result
	for _, result := range p.Wait() {
		if result != nil {
			results = append(results, result)
		}
	}

	return results
}

func (s *Scheduler) window() time.Duration {
	if s.Window <= 0 {
		return DefaultWindow
	}
	return s.Window
}

func (s *Scheduler) spawnEntity(ctx context.Context, entity Entity, now time.Time) *Result {
	window := s.window()

	windowStart, due := s.dueWindow(entity, now)
	if !due {
		return nil
	}

	scale, err := s.backPressure(ctx, entity)
	if err != nil {
		// Leave the window in place so it is tried again next tick
		log.Warn().Err(err).Str("entity", entity.String()).Msg("Could not read backlog, skipping tick")
		stats.SpawnSkipped.WithLabelValues("backlog_unknown").Inc()
		return nil
	}

	s.advance(entity, windowStart.Add(window))

	if scale <= 0 {
		stats.SpawnSkipped.WithLabelValues("backlog").Inc()
		log.Debug().Str("entity", entity.String()).Msg("Backlog full, skipping window")
		return nil
	}

	result, err := s.Generator.Spawn(ctx, entity, windowStart, window, scale)
	if errors.Is(err, ErrInvalidGeometry) {
		stats.SpawnSkipped.WithLabelValues("invalid_geometry").Inc()
		logger := geometryErrors.For(entity.String())
		logger.Error().Err(err).Str("entity", entity.String()).Msg("Skipping entity with invalid geometry")
		return nil
	} else if err != nil {
		log.Error().Err(err).Str("entity", entity.String()).Msg("Failed to spawn window")
	}

	return result
}

// dueWindow returns the start of the entity's next window and whether it has started.
// Windows missed while the scheduler was not running are dropped rather than backfilled.
func (s *Scheduler) dueWindow(entity Entity, now time.Time) (time.Time, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.nextWindows == nil {
		s.nextWindows = map[Entity]time.Time{}
	}

	next, exists := s.nextWindows[entity]
	if !exists || now.Sub(next) >= s.window() {
		next = now.Truncate(time.Minute)
		s.nextWindows[entity] = next
	}

	return next, !now.Before(next)
}

func (s *Scheduler) advance(entity Entity, next time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextWindows[entity] = next
}

// backPressure scales λ down linearly once the backlog passes half of MaxBacklog, reaching zero at MaxBacklog
func (s *Scheduler) backPressure(ctx context.Context, entity Entity) (float64, error) {
	if s.Backlog == nil || s.MaxBacklog <= 0 {
		return 1, nil
	}

	waiting, err := s.Backlog.CountWaiting(ctx, entity.Type, entity.Ref)
	if err != nil {
		return 0, fmt.Errorf("counting backlog: %w", err)
	}

	return backPressureScale(waiting, s.MaxBacklog), nil
}

func backPressureScale(waiting int64, maxBacklog int64) float64 {
	if waiting >= maxBacklog {
		return 0
	}

	half := float64(maxBacklog) / 2
	if float64(waiting) <= half {
		return 1
	}

	return (float64(maxBacklog) - float64(waiting)) / half
}
