package ctdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationDistance(t *testing.T) {
	// One degree of latitude is roughly 111.2km everywhere
	a := NewLocation(-0.1, 51.0)
	b := NewLocation(-0.1, 52.0)

	assert.InDelta(t, 111195, a.Distance(&b), 50)
	assert.InDelta(t, 0, a.Distance(&a), 0.0001)
}

func TestLocationProjectOntoLine(t *testing.T) {
	a := NewLocation(0, 0)
	b := NewLocation(0.01, 0)

	param, closest := (&Location{Type: "Point", Coordinates: []float64{0.005, 0.001}}).ProjectOntoLine(a, b)
	assert.InDelta(t, 0.5, param, 0.0001)
	assert.InDelta(t, 0.005, closest.Longitude(), 0.000001)
	assert.InDelta(t, 0, closest.Latitude(), 0.000001)

	before := NewLocation(-0.01, 0)
	param, _ = before.ProjectOntoLine(a, b)
	assert.Equal(t, 0.0, param)

	after := NewLocation(0.02, 0)
	param, _ = after.ProjectOntoLine(a, b)
	assert.Equal(t, 1.0, param)
}

func TestRouteGeometry(t *testing.T) {
	_, err := NewRouteGeometry([]Location{NewLocation(0, 0)})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	geometry, err := NewRouteGeometry([]Location{
		NewLocation(0, 0),
		NewLocation(0, 0.01),
		NewLocation(0, 0.02),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, geometry.Len())
	assert.InDelta(t, 2223.9, geometry.Length(), 1)
	assert.InDelta(t, 1111.95, geometry.ArcPosition(1), 1)

	arc, offset := geometry.Project(NewLocation(0.0001, 0.015))
	assert.InDelta(t, 1667.9, arc, 2)
	assert.InDelta(t, 11.1, offset, 1)

	midpoint := geometry.LocationAt(geometry.Length() / 2)
	assert.InDelta(t, 0.01, midpoint.Latitude(), 0.00001)

	assert.True(t, geometry.LocationAt(-10).Equal(geometry.Coordinates[0]))
	assert.True(t, geometry.LocationAt(geometry.Length()+10).Equal(geometry.Coordinates[2]))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PassengerStatus
		want     bool
	}{
		{PassengerStatusWaiting, PassengerStatusClaimed, true},
		{PassengerStatusClaimed, PassengerStatusBoarded, true},
		{PassengerStatusWaiting, PassengerStatusExpired, true},
		// terminal states have no outgoing transitions
		{PassengerStatusBoarded, PassengerStatusWaiting, false},
		{PassengerStatusBoarded, PassengerStatusExpired, false},
		{PassengerStatusExpired, PassengerStatusWaiting, false},
		{PassengerStatusExpired, PassengerStatusClaimed, false},
		// skipping or reversing
		{PassengerStatusWaiting, PassengerStatusBoarded, false},
		{PassengerStatusClaimed, PassengerStatusWaiting, false},
		{PassengerStatusClaimed, PassengerStatusExpired, false},
		{PassengerStatusWaiting, PassengerStatusWaiting, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "CanTransition(%s, %s)", tc.from, tc.to)
	}
}

func TestSpawnConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSpawnConfig().Validate())

	var nilConfig *SpawnConfig
	assert.ErrorIs(t, nilConfig.Validate(), ErrInvalidSpawnConfig)

	negative := DefaultSpawnConfig()
	negative.HourlyRate[3] = -1
	assert.ErrorIs(t, negative.Validate(), ErrInvalidSpawnConfig)

	bounds := DefaultSpawnConfig()
	bounds.MinWindowSpawns = 10
	bounds.MaxWindowSpawns = 5
	assert.ErrorIs(t, bounds.Validate(), ErrInvalidSpawnConfig)

	lifetime := DefaultSpawnConfig()
	lifetime.PassengerLifetime = "thirty minutes"
	assert.ErrorIs(t, lifetime.Validate(), ErrInvalidSpawnConfig)
}

func TestSpawnConfigExpiryFor(t *testing.T) {
	spawnTime := time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC)

	config := DefaultSpawnConfig()
	config.PassengerLifetime = "PT20M"
	assert.Equal(t, spawnTime.Add(20*time.Minute), config.ExpiryFor(spawnTime))

	config.PassengerLifetime = ""
	assert.Equal(t, spawnTime.Add(30*time.Minute), config.ExpiryFor(spawnTime))

	config.PassengerLifetime = "PT0S"
	assert.True(t, config.ExpiryFor(spawnTime).After(spawnTime))
}

func TestDayIndex(t *testing.T) {
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DayIndex(monday))
	assert.Equal(t, 6, DayIndex(sunday))
}

func TestPassengerEventBody(t *testing.T) {
	now := time.Now()
	passenger := &PassengerRecord{
		PrimaryIdentifier: "p1",
		EntityRef:         "route-1",
		Origin:            NewLocation(1, 2),
		Status:            PassengerStatusWaiting,
	}

	event := NewPassengerEvent(EventTypePassengerSpawned, now, passenger)
	bodies, ok := event.Body.([]PassengerEventBody)
	require.True(t, ok)
	require.Len(t, bodies, 1)
	assert.Equal(t, "p1", bodies[0].RecordRef)
	assert.Equal(t, []float64{1, 2}, bodies[0].Coordinates)

	assert.Equal(t, "1 passengers started waiting", event.GetNotificationData().Message)
}
