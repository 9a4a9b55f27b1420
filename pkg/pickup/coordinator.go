package pickup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/reservoir"
)

const (
	DefaultPickupRadius = 50.0
	DefaultLookahead    = 500.0
	DefaultPollInterval = 3 * time.Second
)

type RouteQuerier interface {
	Query(ctx context.Context, query reservoir.RouteQuery) ([]*ctdf.PassengerRecord, error)
}

type DepotQuerier interface {
	Query(ctx context.Context, query reservoir.DepotQuery) ([]*ctdf.PassengerRecord, error)
}

// Claimer is the claim side of a reservoir, results must be acted on by the caller
type Claimer interface {
	Get(ctx context.Context, identifier string) (*ctdf.PassengerRecord, error)
	Claim(ctx context.Context, identifier string, vehicleRef string) (ctdf.ClaimResult, error)
	Board(ctx context.Context, identifier string, vehicleRef string) (bool, error)
}

// Mover updates a vehicle's position between polls
type Mover interface {
	Move(vehicle *Vehicle, elapsed time.Duration)
}

// Coordinator polls the reservoirs on behalf of one vehicle, claiming and boarding eligible passengers.
// Losing a claim to another vehicle is expected and the passenger is skipped.
// A coordinator is driven by one goroutine at a time.
type Coordinator struct {
	Vehicle *Vehicle

	Routes     RouteQuerier
	Depots     DepotQuerier
	Claims     Claimer
	Geometries *metadata.GeometryIndex
	Mover      Mover

	PickupRadius float64
	Lookahead    float64
	PollInterval time.Duration

	Now func() time.Time

	// Claims whose outcome is unknown after a store fault, settled at the start of each tick
	pending []string
}

type TickResult struct {
	Candidates int
	Boarded    []string
	Conflicts  int
	Expired    int
	// Claims won where boarding could not be confirmed
	Unconfirmed int
}

func (c *Coordinator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// remainingCapacity holds a seat back for every unsettled claim
func (c *Coordinator) remainingCapacity() int {
	return max(c.Vehicle.RemainingCapacity()-len(c.pending), 0)
}

func (c *Coordinator) pickupRadius() float64 {
	if c.PickupRadius <= 0 {
		return DefaultPickupRadius
	}
	return c.PickupRadius
}

// Eligible is the pickup predicate: close enough, still WAITING, heading the same way and room on board
func (c *Coordinator) Eligible(record *ctdf.PassengerRecord, now time.Time) bool {
	if c.remainingCapacity() <= 0 {
		return false
	}
	if record.Status != ctdf.PassengerStatusWaiting || record.IsExpiredAt(now) {
		return false
	}
	if !c.Vehicle.DirectionCompatible(record.Direction) {
		return false
	}

	return c.Vehicle.Location.Distance(&record.Origin) <= c.pickupRadius()
}

// Candidates asks the reservoir the vehicle is currently served by
func (c *Coordinator) Candidates(ctx context.Context) ([]*ctdf.PassengerRecord, error) {
	if c.Vehicle.AtDepot() {
		return c.Depots.Query(ctx, reservoir.DepotQuery{
			DepotRef: c.Vehicle.DepotRef,
			RouteRef: c.Vehicle.RouteRef,
		})
	}

	geometry, err := c.Geometries.Geometry(ctx, c.Vehicle.RouteRef)
	if err != nil {
		return nil, err
	}

	lookahead := c.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	position, _ := geometry.Project(c.Vehicle.Location)

	// Passengers at the vehicle's own stop can project a touch behind it
	position = max(position-c.pickupRadius(), 0)

	direction := c.Vehicle.Direction
	if direction == ctdf.PassengerDirectionNone {
		direction = ""
	}

	return c.Routes.Query(ctx, reservoir.RouteQuery{
		RouteRef:  c.Vehicle.RouteRef,
		Position:  position,
		Lookahead: lookahead + c.pickupRadius(),
		Direction: direction,
	})
}

// Tick runs one poll: settle earlier unconfirmed claims, query, then claim and board in order until
// the vehicle is full. A store timeout ends the tick early with whatever was boarded so far.
func (c *Coordinator) Tick(ctx context.Context) (*TickResult, error) {
	result := &TickResult{}

	if !c.settlePending(ctx, result) {
		return result, nil
	}

	candidates, err := c.Candidates(ctx)
	if errors.Is(err, reservoir.ErrStoreTimeout) {
		log.Debug().Str("vehicle", c.Vehicle.PrimaryIdentifier).Msg("Reservoir query timed out, waiting for next poll")
		return result, nil
	} else if err != nil {
		return result, err
	}
	result.Candidates = len(candidates)

	now := c.now()
	for _, candidate := range candidates {
		if c.remainingCapacity() <= 0 {
			break
		}
		if !c.Eligible(candidate, now) {
			continue
		}

		claimResult, err := c.Claims.Claim(ctx, candidate.PrimaryIdentifier, c.Vehicle.PrimaryIdentifier)
		if errors.Is(err, reservoir.ErrStoreTimeout) {
			// The write may still have landed
			c.pending = append(c.pending, candidate.PrimaryIdentifier)
			return result, nil
		} else if err != nil {
			return result, err
		}

		switch claimResult {
		case ctdf.ClaimResultOK:
		case ctdf.ClaimResultExpired:
			result.Expired++
			continue
		default:
			result.Conflicts++
			continue
		}

		boarded, err := c.Claims.Board(ctx, candidate.PrimaryIdentifier, c.Vehicle.PrimaryIdentifier)
		if err != nil || !boarded {
			log.Warn().Err(err).
				Str("vehicle", c.Vehicle.PrimaryIdentifier).
				Str("passenger", candidate.PrimaryIdentifier).
				Msg("Claimed passenger could not be boarded")
			result.Unconfirmed++
			c.pending = append(c.pending, candidate.PrimaryIdentifier)
			continue
		}

		c.Vehicle.Onboard++
		result.Boarded = append(result.Boarded, candidate.PrimaryIdentifier)
	}

	return result, nil
}

// settlePending reads back each unconfirmed claim and finishes boarding the ones this vehicle holds.
// Returns false when the store timed out and the tick should end.
func (c *Coordinator) settlePending(ctx context.Context, result *TickResult) bool {
	vehicleRef := c.Vehicle.PrimaryIdentifier

	for len(c.pending) > 0 {
		identifier := c.pending[0]

		record, err := c.Claims.Get(ctx, identifier)
		if errors.Is(err, reservoir.ErrNotFound) {
			c.pending = c.pending[1:]
			continue
		} else if err != nil {
			log.Debug().Err(err).Str("vehicle", vehicleRef).Str("passenger", identifier).Msg("Could not settle claim, retrying next poll")
			return false
		}

		boarded := false
		switch {
		case record.ClaimedBy != vehicleRef:
			// Never claimed by us, or lost
		case record.Status == ctdf.PassengerStatusBoarded:
			boarded = true
		case record.Status == ctdf.PassengerStatusClaimed:
			boarded, err = c.Claims.Board(ctx, identifier, vehicleRef)
			if err != nil {
				log.Debug().Err(err).Str("vehicle", vehicleRef).Str("passenger", identifier).Msg("Could not settle claim, retrying next poll")
				return false
			}
		}

		c.pending = c.pending[1:]
		if boarded {
			c.Vehicle.Onboard++
			result.Boarded = append(result.Boarded, identifier)
		}
	}

	return true
}

// Run polls until the context is cancelled, moving the vehicle between polls when a Mover is set
func (c *Coordinator) Run(ctx context.Context) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := c.now()
	for {
		if c.Mover != nil {
			now := c.now()
			c.Mover.Move(c.Vehicle, now.Sub(last))
			last = now
		}

		result, err := c.Tick(ctx)
		if err != nil {
			log.Error().Err(err).Str("vehicle", c.Vehicle.PrimaryIdentifier).Msg("Pickup poll failed")
		} else if len(result.Boarded) > 0 {
			log.Info().
				Str("vehicle", c.Vehicle.PrimaryIdentifier).
				Int("boarded", len(result.Boarded)).
				Int("onboard", c.Vehicle.Onboard).
				Msg("Passengers boarded")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
