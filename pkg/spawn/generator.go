package spawn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/stats"
)

// Entity is a route or depot that passengers spawn against
type Entity struct {
	Type ctdf.PassengerEntityType `json:"type"`
	Ref  string                   `json:"id"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.Ref)
}

// Pusher is the write side of a reservoir
type Pusher interface {
	Push(ctx context.Context, records []*ctdf.PassengerRecord) (int, []*ctdf.PassengerRecord, error)
}

type Result struct {
	Entity      Entity
	WindowStart time.Time
	Window      time.Duration
	Lambda      float64

	// Sampled is the Poisson draw, Records are the ones persisted
	Sampled int
	Records []*ctdf.PassengerRecord
	Failed  []*ctdf.PassengerRecord
}

type DemandGenerator struct {
	Rates        *RateCalculator
	Metadata     metadata.Provider
	Geometries   *metadata.GeometryIndex
	Destinations DestinationStrategy
	Sampler      *Sampler
	Reservoir    Pusher
	Events       events.Publisher

	// ISO-8601 lifetime applied when an entity config leaves it empty
	DefaultLifetime string

	// Bounds retrying persistence of a batch, zero uses the default backoff
	PersistRetries uint64
}

var defaultSampler = NewTimeSeededSampler()

func (g *DemandGenerator) sampler() *Sampler {
	if g.Sampler == nil {
		return defaultSampler
	}
	return g.Sampler
}

func (g *DemandGenerator) destinations() DestinationStrategy {
	if g.Destinations == nil {
		return UniformStrategy{}
	}
	return g.Destinations
}

// Generate samples and builds the passengers for one window without persisting them.
// scale multiplies λ and is used to back off busy entities.
func (g *DemandGenerator) Generate(ctx context.Context, entity Entity, windowStart time.Time, window time.Duration, scale float64) (*Result, error) {
	windowStart = windowStart.Truncate(time.Second)

	config := g.Rates.Config(ctx, entity.Ref)
	if config.PassengerLifetime == "" {
		config.PassengerLifetime = g.DefaultLifetime
	}

	lambda := Lambda(config, windowStart, window.Minutes())
	if scale < 1 {
		lambda *= max(scale, 0)
	}

	result := &Result{
		Entity:      entity,
		WindowStart: windowStart,
		Window:      window,
		Lambda:      lambda,
	}

	var build func(spawnTime time.Time) (*ctdf.PassengerRecord, bool)

	switch entity.Type {
	case ctdf.PassengerEntityRoute:
		geometry, err := g.Geometries.Geometry(ctx, entity.Ref)
		if err != nil {
			return nil, err
		}
		build = func(spawnTime time.Time) (*ctdf.PassengerRecord, bool) {
			return g.routePassenger(entity, geometry, spawnTime)
		}
	case ctdf.PassengerEntityDepot:
		depot, candidates, err := g.depotCandidates(ctx, entity.Ref)
		if err != nil {
			return nil, err
		}
		build = func(spawnTime time.Time) (*ctdf.PassengerRecord, bool) {
			return g.depotPassenger(depot, candidates, spawnTime)
		}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entity.Type)
	}

	result.Sampled = g.sampler().Poisson(lambda)

	windowSeconds := int(window / time.Second)
	for i := 0; i < result.Sampled; i++ {
		spawnTime := windowStart
		if windowSeconds > 0 {
			spawnTime = windowStart.Add(time.Duration(g.sampler().IntN(windowSeconds)) * time.Second)
		}

		record, ok := build(spawnTime)
		if !ok {
			continue
		}

		record.PrimaryIdentifier = fmt.Sprintf(ctdf.PassengerIDFormat, uuid.NewString())
		record.EntityType = entity.Type
		record.EntityRef = entity.Ref
		record.SpawnTime = spawnTime
		record.ExpiresAt = config.ExpiryFor(spawnTime)
		record.Status = ctdf.PassengerStatusWaiting

		result.Records = append(result.Records, record)
	}

	return result, nil
}

// routePassenger picks a boarding coordinate uniformly over the whole route. Boarding at the final
// coordinate can only mean travelling back towards the start, every other boarding travels forwards.
func (g *DemandGenerator) routePassenger(entity Entity, geometry *ctdf.RouteGeometry, spawnTime time.Time) (*ctdf.PassengerRecord, bool) {
	n := geometry.Len()
	boardIndex := g.sampler().IntN(n)

	var alightIndex int
	var direction ctdf.PassengerDirection
	if boardIndex == n-1 {
		alightIndex = g.sampler().IntN(boardIndex)
		direction = ctdf.PassengerDirectionInbound
	} else {
		alightIndex = boardIndex + 1 + g.sampler().IntN(n-boardIndex-1)
		direction = ctdf.PassengerDirectionOutbound
	}

	origin := geometry.Coordinates[boardIndex]
	destination := geometry.Coordinates[alightIndex]
	if origin.Equal(destination) {
		log.Debug().Str("route", entity.Ref).Int("board", boardIndex).Int("alight", alightIndex).Msg("Skipping zero distance trip")
		return nil, false
	}

	return &ctdf.PassengerRecord{
		Origin:      origin,
		Destination: destination,
		BoardIndex:  boardIndex,
		AlightIndex: alightIndex,
		ArcPosition: geometry.ArcPosition(boardIndex),
		Direction:   direction,
	}, true
}

func (g *DemandGenerator) depotPassenger(depot *ctdf.Depot, candidates []DestinationCandidate, spawnTime time.Time) (*ctdf.PassengerRecord, bool) {
	chosen, err := chooseDestination(g.destinations(), candidates, g.sampler())
	if err != nil {
		log.Error().Err(err).Str("depot", depot.PrimaryIdentifier).Msg("Failed to choose destination")
		return nil, false
	}

	return &ctdf.PassengerRecord{
		RouteRef:    candidates[chosen].Route.PrimaryIdentifier,
		Origin:      depot.Location,
		Destination: candidates[chosen].Endpoint,
		Direction:   ctdf.PassengerDirectionNone,
	}, true
}

// depotCandidates lists the routes serving a depot with the endpoint of each that is furthest from it
func (g *DemandGenerator) depotCandidates(ctx context.Context, depotRef string) (*ctdf.Depot, []DestinationCandidate, error) {
	depot, err := g.Metadata.GetDepot(ctx, depotRef)
	if err != nil {
		return nil, nil, err
	}
	if !depot.Location.IsValid() {
		return nil, nil, fmt.Errorf("%w: depot %s has no location", ErrInvalidGeometry, depotRef)
	}

	var candidates []DestinationCandidate
	for _, routeRef := range depot.RouteRefs {
		route, err := g.Metadata.GetRoute(ctx, routeRef)
		if err != nil {
			log.Debug().Err(err).Str("depot", depotRef).Str("route", routeRef).Msg("Skipping depot route")
			continue
		}

		geometry, err := route.Geometry()
		if err != nil {
			log.Debug().Err(err).Str("depot", depotRef).Msg("Skipping depot route")
			continue
		}

		first, last, _ := route.Endpoints()
		endpoint := first
		if depot.Location.Distance(&last) > depot.Location.Distance(&first) {
			endpoint = last
		}
		if endpoint.Equal(depot.Location) {
			continue
		}

		candidates = append(candidates, DestinationCandidate{
			Route:    route,
			Endpoint: endpoint,
			Length:   geometry.Length(),
		})
	}

	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("%w: depot %s has no usable routes", ErrInvalidGeometry, depotRef)
	}

	return depot, candidates, nil
}

// Spawn generates a window of demand, persists it and announces it. Persistence failures are retried
// for the failed records only, they are never sampled again.
func (g *DemandGenerator) Spawn(ctx context.Context, entity Entity, windowStart time.Time, window time.Duration, scale float64) (*Result, error) {
	result, err := g.Generate(ctx, entity, windowStart, window, scale)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return result, nil
	}

	generated := result.Records
	failed, err := g.persist(ctx, generated)

	result.Failed = failed
	result.Records = withoutRecords(generated, failed)

	stats.PassengersSpawned.WithLabelValues(string(entity.Type)).Add(float64(len(result.Records)))
	if len(failed) > 0 {
		stats.PassengersPersistFailed.WithLabelValues(string(entity.Type)).Add(float64(len(failed)))
	}

	if len(result.Records) > 0 && g.Events != nil {
		g.Events.Publish(ctdf.NewPassengerEvent(ctdf.EventTypePassengerSpawned, time.Now(), result.Records...))
	}

	log.Debug().
		Str("entity", entity.String()).
		Float64("lambda", result.Lambda).
		Int("sampled", result.Sampled).
		Int("persisted", len(result.Records)).
		Int("failed", len(failed)).
		Msg("Spawned window")

	return result, err
}

func (g *DemandGenerator) persist(ctx context.Context, records []*ctdf.PassengerRecord) ([]*ctdf.PassengerRecord, error) {
	pending := records

	retries := g.PersistRetries
	if retries == 0 {
		retries = 3
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	err := backoff.Retry(func() error {
		_, failed, err := g.Reservoir.Push(ctx, pending)
		if len(failed) > 0 {
			pending = failed
		} else {
			pending = nil
		}

		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Int("failed", len(pending)).Msg("Failed to persist passengers")
	}

	return pending, err
}

func withoutRecords(records []*ctdf.PassengerRecord, remove []*ctdf.PassengerRecord) []*ctdf.PassengerRecord {
	if len(remove) == 0 {
		return records
	}

	removed := map[string]bool{}
	for _, record := range remove {
		removed[record.PrimaryIdentifier] = true
	}

	var kept []*ctdf.PassengerRecord
	for _, record := range records {
		if !removed[record.PrimaryIdentifier] {
			kept = append(kept, record)
		}
	}

	return kept
}
