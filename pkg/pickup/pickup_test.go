package pickup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/reservoir"
)

func testRoute() *ctdf.Route {
	return &ctdf.Route{
		PrimaryIdentifier: "route-1",
		Coordinates: []ctdf.Location{
			ctdf.NewLocation(-0.1, 51.500),
			ctdf.NewLocation(-0.1, 51.501),
			ctdf.NewLocation(-0.1, 51.502),
		},
	}
}

type testWorld struct {
	passengers *reservoir.Reservoir
	routes     *reservoir.RouteReservoir
	depots     *reservoir.DepotReservoir
	geometries *metadata.GeometryIndex
	geometry   *ctdf.RouteGeometry
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	provider := metadata.NewStaticProvider([]*ctdf.Route{testRoute()}, nil)
	geometries := metadata.NewGeometryIndex(provider)
	geometry, err := geometries.Geometry(context.Background(), "route-1")
	require.NoError(t, err)

	passengers := reservoir.NewReservoir(reservoir.NewMemoryStore(), nil, nil, time.Second)

	return &testWorld{
		passengers: passengers,
		routes:     reservoir.NewRouteReservoir(passengers),
		depots:     reservoir.NewDepotReservoir(passengers),
		geometries: geometries,
		geometry:   geometry,
	}
}

func (w *testWorld) push(t *testing.T, records ...*ctdf.PassengerRecord) {
	t.Helper()

	_, _, err := w.passengers.Push(context.Background(), records)
	require.NoError(t, err)
}

func (w *testWorld) waitingAtStop(id string, stop int, direction ctdf.PassengerDirection) *ctdf.PassengerRecord {
	now := time.Now()
	return &ctdf.PassengerRecord{
		PrimaryIdentifier: id,
		EntityType:        ctdf.PassengerEntityRoute,
		EntityRef:         "route-1",
		Origin:            w.geometry.Coordinates[stop],
		Destination:       w.geometry.Coordinates[2],
		BoardIndex:        stop,
		AlightIndex:       2,
		ArcPosition:       w.geometry.ArcPosition(stop),
		SpawnTime:         now.Add(-time.Minute).Truncate(time.Second),
		ExpiresAt:         now.Add(30 * time.Minute),
		Direction:         direction,
		Status:            ctdf.PassengerStatusWaiting,
	}
}

func (w *testWorld) coordinator(vehicleID string, stop int, capacity int) *Coordinator {
	return &Coordinator{
		Vehicle: &Vehicle{
			PrimaryIdentifier: vehicleID,
			RouteRef:          "route-1",
			Location:          w.geometry.Coordinates[stop],
			Direction:         ctdf.PassengerDirectionOutbound,
			Capacity:          capacity,
		},
		Routes:       w.routes,
		Depots:       w.depots,
		Claims:       w.passengers,
		Geometries:   w.geometries,
		PickupRadius: 50,
		Lookahead:    500,
	}
}

func TestEligible(t *testing.T) {
	world := newTestWorld(t)
	coordinator := world.coordinator("vehicle-1", 1, 2)
	now := time.Now()

	assert.True(t, coordinator.Eligible(world.waitingAtStop("ok", 1, ctdf.PassengerDirectionOutbound), now))
	assert.True(t, coordinator.Eligible(world.waitingAtStop("any-way", 1, ctdf.PassengerDirectionNone), now))

	assert.False(t, coordinator.Eligible(world.waitingAtStop("far", 2, ctdf.PassengerDirectionOutbound), now), "111m away")
	assert.False(t, coordinator.Eligible(world.waitingAtStop("wrong-way", 1, ctdf.PassengerDirectionInbound), now))

	claimed := world.waitingAtStop("claimed", 1, ctdf.PassengerDirectionOutbound)
	claimed.Status = ctdf.PassengerStatusClaimed
	assert.False(t, coordinator.Eligible(claimed, now))

	expired := world.waitingAtStop("expired", 1, ctdf.PassengerDirectionOutbound)
	expired.ExpiresAt = now.Add(-time.Second)
	assert.False(t, coordinator.Eligible(expired, now))

	coordinator.Vehicle.Onboard = 2
	assert.False(t, coordinator.Eligible(world.waitingAtStop("full", 1, ctdf.PassengerDirectionOutbound), now))
}

func TestTickBoardsUntilFull(t *testing.T) {
	world := newTestWorld(t)
	for i := 0; i < 5; i++ {
		world.push(t, world.waitingAtStop(fmt.Sprintf("p%d", i), 1, ctdf.PassengerDirectionOutbound))
	}
	world.push(t, world.waitingAtStop("next-stop", 2, ctdf.PassengerDirectionOutbound))

	coordinator := world.coordinator("vehicle-1", 1, 3)

	result, err := coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Boarded, 3)
	assert.Equal(t, 3, coordinator.Vehicle.Onboard)
	assert.NotContains(t, result.Boarded, "next-stop")

	for _, id := range result.Boarded {
		record, err := world.passengers.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, ctdf.PassengerStatusBoarded, record.Status)
		assert.Equal(t, "vehicle-1", record.ClaimedBy)
	}

	result, err = coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Boarded, "vehicle is full")

	waiting, err := world.passengers.CountWaiting(context.Background(), ctdf.PassengerEntityRoute, "route-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), waiting)
}

func TestTwoCoordinatorsRaceForOnePassenger(t *testing.T) {
	for round := 0; round < 20; round++ {
		world := newTestWorld(t)
		world.push(t, world.waitingAtStop("contested", 1, ctdf.PassengerDirectionOutbound))

		coordinators := []*Coordinator{
			world.coordinator("vehicle-a", 1, 10),
			world.coordinator("vehicle-b", 1, 10),
		}

		start := make(chan struct{})
		results := make(chan *TickResult, len(coordinators))
		var wg sync.WaitGroup
		for _, coordinator := range coordinators {
			wg.Add(1)
			go func(coordinator *Coordinator) {
				defer wg.Done()
				<-start

				result, err := coordinator.Tick(context.Background())
				assert.NoError(t, err)
				results <- result
			}(coordinator)
		}

		close(start)
		wg.Wait()
		close(results)

		boarded := 0
		for result := range results {
			boarded += len(result.Boarded)
		}
		assert.Equal(t, 1, boarded)
		assert.Equal(t, 1, coordinators[0].Vehicle.Onboard+coordinators[1].Vehicle.Onboard)
	}
}

func TestDepotCoordinator(t *testing.T) {
	world := newTestWorld(t)
	depotLocation := ctdf.NewLocation(-0.1, 51.499)

	now := time.Now().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		world.push(t, &ctdf.PassengerRecord{
			PrimaryIdentifier: fmt.Sprintf("d%d", i),
			EntityType:        ctdf.PassengerEntityDepot,
			EntityRef:         "depot-1",
			RouteRef:          "route-1",
			Origin:            depotLocation,
			Destination:       world.geometry.Coordinates[2],
			SpawnTime:         now.Add(-time.Duration(10-i) * time.Minute),
			ExpiresAt:         now.Add(time.Hour),
			Direction:         ctdf.PassengerDirectionNone,
			Status:            ctdf.PassengerStatusWaiting,
		})
	}

	coordinator := world.coordinator("vehicle-1", 0, 2)
	coordinator.Vehicle.DepotRef = "depot-1"
	coordinator.Vehicle.Location = depotLocation

	result, err := coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"d0", "d1"}, result.Boarded, "oldest passengers board first")
}

type timingOutRoutes struct{}

func (timingOutRoutes) Query(context.Context, reservoir.RouteQuery) ([]*ctdf.PassengerRecord, error) {
	return nil, fmt.Errorf("%w: slow", reservoir.ErrStoreTimeout)
}

type conflictingClaims struct {
	claims int
}

func (c *conflictingClaims) Claim(context.Context, string, string) (ctdf.ClaimResult, error) {
	c.claims++
	if c.claims == 1 {
		return ctdf.ClaimResultConflict, nil
	}
	return ctdf.ClaimResultExpired, nil
}

func (c *conflictingClaims) Board(context.Context, string, string) (bool, error) {
	return false, nil
}

func (c *conflictingClaims) Get(context.Context, string) (*ctdf.PassengerRecord, error) {
	return nil, reservoir.ErrNotFound
}

// lateClaims reports a store timeout once for a claim or board, either before or after the write lands
type lateClaims struct {
	*reservoir.Reservoir
	lateClaim bool
	lateBoard bool
	failBoard bool
}

func (l *lateClaims) Claim(ctx context.Context, identifier string, vehicleRef string) (ctdf.ClaimResult, error) {
	result, err := l.Reservoir.Claim(ctx, identifier, vehicleRef)
	if err == nil && l.lateClaim {
		l.lateClaim = false
		return "", fmt.Errorf("%w: late", reservoir.ErrStoreTimeout)
	}
	return result, err
}

func (l *lateClaims) Board(ctx context.Context, identifier string, vehicleRef string) (bool, error) {
	if l.failBoard {
		l.failBoard = false
		return false, fmt.Errorf("%w: slow", reservoir.ErrStoreTimeout)
	}

	boarded, err := l.Reservoir.Board(ctx, identifier, vehicleRef)
	if err == nil && l.lateBoard {
		l.lateBoard = false
		return false, fmt.Errorf("%w: late", reservoir.ErrStoreTimeout)
	}
	return boarded, err
}

func TestTickSettlesUnconfirmedClaims(t *testing.T) {
	for name, claims := range map[string]*lateClaims{
		"claim landed late": {lateClaim: true},
		"board landed late": {lateBoard: true},
		"board failed":      {failBoard: true},
	} {
		t.Run(name, func(t *testing.T) {
			world := newTestWorld(t)
			world.push(t,
				world.waitingAtStop("a", 1, ctdf.PassengerDirectionOutbound),
				world.waitingAtStop("b", 1, ctdf.PassengerDirectionOutbound),
			)

			claims.Reservoir = world.passengers
			coordinator := world.coordinator("vehicle-1", 1, 1)
			coordinator.Claims = claims

			result, err := coordinator.Tick(context.Background())
			require.NoError(t, err)
			assert.Empty(t, result.Boarded)
			assert.Zero(t, coordinator.Vehicle.Onboard)

			b, err := world.passengers.Get(context.Background(), "b")
			require.NoError(t, err)
			assert.Equal(t, ctdf.PassengerStatusWaiting, b.Status, "the unsettled claim holds the last seat")

			result, err = coordinator.Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, result.Boarded)
			assert.Equal(t, 1, coordinator.Vehicle.Onboard)

			a, err := world.passengers.Get(context.Background(), "a")
			require.NoError(t, err)
			assert.Equal(t, ctdf.PassengerStatusBoarded, a.Status)
			assert.Equal(t, "vehicle-1", a.ClaimedBy)

			result, err = coordinator.Tick(context.Background())
			require.NoError(t, err)
			assert.Empty(t, result.Boarded, "settled claims are not boarded twice")
		})
	}
}

func TestTickTimeoutIsNoResult(t *testing.T) {
	world := newTestWorld(t)
	coordinator := world.coordinator("vehicle-1", 1, 2)
	coordinator.Routes = timingOutRoutes{}

	result, err := coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Boarded)
}

func TestTickSkipsLostClaims(t *testing.T) {
	world := newTestWorld(t)
	world.push(t,
		world.waitingAtStop("a", 1, ctdf.PassengerDirectionOutbound),
		world.waitingAtStop("b", 1, ctdf.PassengerDirectionOutbound),
	)

	claims := &conflictingClaims{}
	coordinator := world.coordinator("vehicle-1", 1, 5)
	coordinator.Claims = claims

	result, err := coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claims.claims, "each candidate is tried once")
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Expired)
	assert.Empty(t, result.Boarded)
}

func TestRouteDriver(t *testing.T) {
	world := newTestWorld(t)
	driver := NewRouteDriver(world.geometry, 10, 0)
	vehicle := &Vehicle{Direction: ctdf.PassengerDirectionOutbound, Onboard: 5, Capacity: 10}

	driver.Move(vehicle, 10*time.Second)
	arc, _ := world.geometry.Project(vehicle.Location)
	assert.InDelta(t, 100, arc, 1)
	assert.Equal(t, 5, vehicle.Onboard)

	driver.Move(vehicle, time.Hour)
	assert.Equal(t, ctdf.PassengerDirectionInbound, vehicle.Direction)
	assert.True(t, vehicle.Location.Equal(world.geometry.Coordinates[2]))
	assert.Equal(t, 0, vehicle.Onboard, "everyone alights at the terminus")

	driver.Move(vehicle, 10*time.Second)
	arc, _ = world.geometry.Project(vehicle.Location)
	assert.InDelta(t, world.geometry.Length()-100, arc, 1)
}

func TestFleetRunsUntilCancelled(t *testing.T) {
	world := newTestWorld(t)
	world.push(t,
		world.waitingAtStop("a", 0, ctdf.PassengerDirectionOutbound),
		world.waitingAtStop("b", 1, ctdf.PassengerDirectionOutbound),
	)

	fleet, err := NewRouteFleet(context.Background(), "route-1", world.geometries, world.routes, world.passengers, FleetOptions{
		Vehicles:     3,
		Capacity:     10,
		Speed:        50,
		PickupRadius: 50,
		Lookahead:    500,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, fleet.Coordinators, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		fleet.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fleet did not stop after cancellation")
	}
}
