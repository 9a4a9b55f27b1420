package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/ridership/pkg/api/stats"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/spawn"
)

type testServer struct {
	app        *fiber.App
	provider   metadata.Provider
	passengers *reservoir.Reservoir
	geometry   *ctdf.RouteGeometry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	route := &ctdf.Route{PrimaryIdentifier: "route-1"}
	for i := 0; i < 5; i++ {
		route.Coordinates = append(route.Coordinates, ctdf.NewLocation(-0.1, 51.5+float64(i)*0.001))
	}
	depot := &ctdf.Depot{
		PrimaryIdentifier: "depot-1",
		Location:          ctdf.NewLocation(-0.1, 51.499),
		RouteRefs:         []string{"route-1"},
	}

	provider := metadata.NewStaticProvider([]*ctdf.Route{route}, []*ctdf.Depot{depot})
	geometries := metadata.NewGeometryIndex(provider)
	geometry, err := geometries.Geometry(context.Background(), "route-1")
	require.NoError(t, err)

	config := ctdf.DefaultSpawnConfig()
	config.EntityRef = "route-1"
	config.IsDefault = false
	for hour := range config.HourlyRate {
		config.HourlyRate[hour] = 1
	}
	config.MinWindowSpawns = 5
	config.MaxWindowSpawns = 5

	passengers := reservoir.NewReservoir(reservoir.NewMemoryStore(), nil, nil, time.Second)

	generator := &spawn.DemandGenerator{
		Rates:      spawn.NewRateCalculator(spawn.NewStaticConfigProvider(config)),
		Metadata:   provider,
		Geometries: geometries,
		Sampler:    spawn.NewSampler(42),
		Reservoir:  passengers,
	}

	server := &Server{
		Generator:  generator,
		Passengers: passengers,
		Geometries: geometries,
	}

	return &testServer{
		app:        server.App(),
		provider:   provider,
		passengers: passengers,
		geometry:   geometry,
	}
}

func (s *testServer) request(t *testing.T, method string, target string) (int, []byte) {
	t.Helper()

	response, err := s.app.Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)

	return response.StatusCode, body
}

func (s *testServer) waiting(t *testing.T, id string, stop int) *ctdf.PassengerRecord {
	t.Helper()

	now := time.Now()
	record := &ctdf.PassengerRecord{
		PrimaryIdentifier: id,
		EntityType:        ctdf.PassengerEntityRoute,
		EntityRef:         "route-1",
		Origin:            s.geometry.Coordinates[stop],
		Destination:       s.geometry.Coordinates[4],
		BoardIndex:        stop,
		AlightIndex:       4,
		ArcPosition:       s.geometry.ArcPosition(stop),
		SpawnTime:         now.Add(-time.Minute).Truncate(time.Second),
		ExpiresAt:         now.Add(30 * time.Minute),
		Direction:         ctdf.PassengerDirectionOutbound,
		Status:            ctdf.PassengerStatusWaiting,
	}

	_, _, err := s.passengers.Push(context.Background(), []*ctdf.PassengerRecord{record})
	require.NoError(t, err)

	return record
}

func decodeIdentifiers(t *testing.T, body []byte) []string {
	t.Helper()

	var records []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &records))

	identifiers := []string{}
	for _, record := range records {
		identifiers = append(identifiers, record.ID)
	}
	return identifiers
}

func TestVersion(t *testing.T) {
	server := newTestServer(t)

	status, body := server.request(t, http.MethodGet, "/ridership/version")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"version":"v0.1"}`, string(body))
}

func TestSpawnEndpoint(t *testing.T) {
	server := newTestServer(t)

	status, body := server.request(t, http.MethodPost, "/ridership/spawn/route-1?type=route&window=15m")
	require.Equal(t, http.StatusOK, status, string(body))

	var response struct {
		Lambda  float64 `json:"lambda"`
		Sampled int     `json:"sampled"`
		Spawned int     `json:"spawned"`
		Failed  int     `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, 5.0, response.Lambda)
	assert.Equal(t, response.Sampled, response.Spawned)
	assert.Zero(t, response.Failed)

	waiting, err := server.passengers.CountWaiting(context.Background(), ctdf.PassengerEntityRoute, "route-1")
	require.NoError(t, err)
	assert.Equal(t, int64(response.Spawned), waiting)

	status, _ = server.request(t, http.MethodPost, "/ridership/spawn/route-1?type=bus")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.request(t, http.MethodPost, "/ridership/spawn/route-1?window=soon")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRoutePassengersEndpoint(t *testing.T) {
	server := newTestServer(t)
	server.waiting(t, "stop-2", 2)
	server.waiting(t, "stop-1", 1)
	server.waiting(t, "stop-4", 4)

	status, body := server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers?position=100&lookahead=250")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"stop-1", "stop-2"}, decodeIdentifiers(t, body))

	status, body = server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers?lon=-0.1&lat=51.5&lookahead=1000&capacity=1")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"stop-1"}, decodeIdentifiers(t, body))

	status, body = server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers?position=0&direction=inbound")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeIdentifiers(t, body))

	status, _ = server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.request(t, http.MethodGet, "/ridership/routes/route-9/passengers?lon=-0.1&lat=51.5")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers?position=0&lookahead=NaN")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers?position=Inf&lookahead=100")
	assert.Equal(t, http.StatusBadRequest, status)

	// Oversized lookahead is capped rather than walked cell by cell
	status, body = server.request(t, http.MethodGet, "/ridership/routes/route-1/passengers?position=0&lookahead=1e15")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"stop-1", "stop-2", "stop-4"}, decodeIdentifiers(t, body))
}

func TestDepotPassengersEndpoint(t *testing.T) {
	server := newTestServer(t)

	now := time.Now().Truncate(time.Second)
	_, _, err := server.passengers.Push(context.Background(), []*ctdf.PassengerRecord{
		{
			PrimaryIdentifier: "newer",
			EntityType:        ctdf.PassengerEntityDepot,
			EntityRef:         "depot-1",
			RouteRef:          "route-1",
			SpawnTime:         now.Add(-time.Minute),
			ExpiresAt:         now.Add(time.Hour),
			Direction:         ctdf.PassengerDirectionNone,
			Status:            ctdf.PassengerStatusWaiting,
		},
		{
			PrimaryIdentifier: "older",
			EntityType:        ctdf.PassengerEntityDepot,
			EntityRef:         "depot-1",
			RouteRef:          "route-1",
			SpawnTime:         now.Add(-5 * time.Minute),
			ExpiresAt:         now.Add(time.Hour),
			Direction:         ctdf.PassengerDirectionNone,
			Status:            ctdf.PassengerStatusWaiting,
		},
	})
	require.NoError(t, err)

	status, body := server.request(t, http.MethodGet, "/ridership/depots/depot-1/passengers?route=route-1")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"older", "newer"}, decodeIdentifiers(t, body))

	status, body = server.request(t, http.MethodGet, "/ridership/depots/depot-1/passengers?route=route-2")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeIdentifiers(t, body))
}

func TestClaimAndBoardEndpoints(t *testing.T) {
	server := newTestServer(t)
	server.waiting(t, "p1", 1)

	status, body := server.request(t, http.MethodPost, "/ridership/passengers/p1/claim?vehicle=bus-a")
	require.Equal(t, http.StatusOK, status, string(body))

	var token ctdf.ClaimToken
	require.NoError(t, json.Unmarshal(body, &token))
	assert.Equal(t, "bus-a", token.VehicleRef)
	assert.Equal(t, "p1", token.RecordRef)

	status, body = server.request(t, http.MethodPost, "/ridership/passengers/p1/claim?vehicle=bus-b")
	assert.Equal(t, http.StatusConflict, status)
	assert.JSONEq(t, `{"result":"CONFLICT"}`, string(body))

	status, _ = server.request(t, http.MethodPost, "/ridership/passengers/p1/board?vehicle=bus-b")
	assert.Equal(t, http.StatusConflict, status, "only the claiming vehicle can board")

	status, body = server.request(t, http.MethodPost, "/ridership/passengers/p1/board?vehicle=bus-a")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"boarded":true}`, string(body))

	status, body = server.request(t, http.MethodGet, "/ridership/passengers/p1?detailed=true")
	require.Equal(t, http.StatusOK, status)

	var record struct {
		Status    string `json:"status"`
		ClaimedBy string `json:"claimed_by"`
	}
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, "BOARDED", record.Status)
	assert.Equal(t, "bus-a", record.ClaimedBy)

	status, _ = server.request(t, http.MethodPost, "/ridership/passengers/missing/claim?vehicle=bus-a")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = server.request(t, http.MethodPost, "/ridership/passengers/p1/claim")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = server.request(t, http.MethodGet, "/ridership/passengers/missing")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatsEndpoint(t *testing.T) {
	server := newTestServer(t)
	server.waiting(t, "p1", 1)
	server.waiting(t, "p2", 2)

	refreshed, err := stats.RefreshReservoirStats(context.Background(), server.provider, server.passengers)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refreshed.TotalWaiting)

	status, body := server.request(t, http.MethodGet, "/ridership/stats")
	require.Equal(t, http.StatusOK, status)

	var response struct {
		Routes       map[string]int64 `json:"routes"`
		Depots       map[string]int64 `json:"depots"`
		TotalWaiting int64            `json:"total_waiting"`
	}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, map[string]int64{"route-1": 2}, response.Routes)
	assert.Equal(t, map[string]int64{"depot-1": 0}, response.Depots)
	assert.Equal(t, int64(2), response.TotalWaiting)
}
