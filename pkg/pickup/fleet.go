package pickup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
)

// Fleet runs many coordinators at once, each on its own poll cadence
type Fleet struct {
	Coordinators []*Coordinator
}

func (f *Fleet) Run(ctx context.Context) {
	var wg conc.WaitGroup

	for _, coordinator := range f.Coordinators {
		wg.Go(func() {
			coordinator.Run(ctx)
		})
	}

	if recovered := wg.WaitAndRecover(); recovered != nil {
		log.Error().Str("panic", recovered.String()).Msg("Vehicle coordinator panicked")
	}
}

type FleetOptions struct {
	Vehicles     int
	Capacity     int
	Speed        float64
	PickupRadius float64
	Lookahead    float64
	PollInterval time.Duration
}

// NewRouteFleet spreads vehicles evenly along a route, alternating direction
func NewRouteFleet(ctx context.Context, routeRef string, geometries *metadata.GeometryIndex, routes RouteQuerier, claims Claimer, options FleetOptions) (*Fleet, error) {
	geometry, err := geometries.Geometry(ctx, routeRef)
	if err != nil {
		return nil, err
	}

	fleet := &Fleet{}
	for i := 0; i < options.Vehicles; i++ {
		startArc := geometry.Length() * float64(i) / float64(max(options.Vehicles, 1))

		direction := ctdf.PassengerDirectionOutbound
		if i%2 == 1 {
			direction = ctdf.PassengerDirectionInbound
		}

		vehicle := &Vehicle{
			PrimaryIdentifier: fmt.Sprintf("SIMULATED:%s:%d", routeRef, i),
			RouteRef:          routeRef,
			Location:          geometry.LocationAt(startArc),
			Direction:         direction,
			Capacity:          options.Capacity,
		}

		fleet.Coordinators = append(fleet.Coordinators, &Coordinator{
			Vehicle:      vehicle,
			Routes:       routes,
			Claims:       claims,
			Geometries:   geometries,
			Mover:        NewRouteDriver(geometry, options.Speed, startArc),
			PickupRadius: options.PickupRadius,
			Lookahead:    options.Lookahead,
			PollInterval: options.PollInterval,
		})
	}

	return fleet, nil
}
