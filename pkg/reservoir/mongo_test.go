package reservoir

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func testMongoStore(t *testing.T) *MongoStore {
	t.Helper()

	connection := os.Getenv("RIDERSHIP_TEST_MONGODB")
	if connection == "" {
		t.Skip("RIDERSHIP_TEST_MONGODB not set; skipping MongoDB store tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connection))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	collection := client.Database(fmt.Sprintf("ridership_test_%d", time.Now().UnixNano())).Collection(database.PassengersCollection)
	t.Cleanup(func() { collection.Database().Drop(context.Background()) })

	database.CreatePassengerIndexes(collection)

	return &MongoStore{Collection: collection}
}

func TestMongoStoreClaimRace(t *testing.T) {
	store := testMongoStore(t)
	reservoir := NewReservoir(store, nil, nil, 5*time.Second)
	reservoir.Now = func() time.Time { return testNow }
	ctx := context.Background()

	count, failed, err := reservoir.Push(ctx, []*ctdf.PassengerRecord{
		routePassenger("contested", "route-1", 10, ctdf.PassengerDirectionOutbound),
		routePassenger("contested", "route-1", 10, ctdf.PassengerDirectionOutbound),
	})
	assert.ErrorIs(t, err, ErrPersistFailure)
	assert.Equal(t, 1, count)
	assert.Len(t, failed, 1)

	const claimants = 20
	results := make(chan ctdf.ClaimResult, claimants)
	start := make(chan struct{})
	for i := 0; i < claimants; i++ {
		go func(vehicle string) {
			<-start
			result, err := reservoir.Claim(ctx, "contested", vehicle)
			if err != nil {
				result = ""
			}
			results <- result
		}(fmt.Sprintf("vehicle-%d", i))
	}
	close(start)

	won := 0
	for i := 0; i < claimants; i++ {
		result := <-results
		if result == ctdf.ClaimResultOK {
			won++
		} else {
			assert.Equal(t, ctdf.ClaimResultConflict, result)
		}
	}
	assert.Equal(t, 1, won)
}

func TestMongoStoreFindAndExpire(t *testing.T) {
	store := testMongoStore(t)
	ctx := context.Background()

	early := depotPassenger("early", "depot-1", "route-1", testNow.Add(-time.Hour))
	early.ExpiresAt = testNow.Add(-time.Minute)
	late := depotPassenger("late", "depot-1", "route-1", testNow)

	failed, err := store.InsertMany(ctx, []*ctdf.PassengerRecord{late, early})
	require.NoError(t, err)
	require.Empty(t, failed)

	records, err := store.Find(ctx, Query{EntityRef: "depot-1", Status: ctdf.PassengerStatusWaiting})
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, identifiers(records))

	records, err = store.Find(ctx, Query{Status: ctdf.PassengerStatusWaiting, ExpiredBy: testNow})
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, identifiers(records))

	expired, err := store.ConditionalUpdate(ctx, "early",
		Condition{Status: ctdf.PassengerStatusWaiting},
		Update{Status: ctdf.PassengerStatusExpired, At: testNow},
	)
	require.NoError(t, err)
	require.NotNil(t, expired)
	assert.Equal(t, ctdf.PassengerStatusExpired, expired.Status)

	count, err := store.CountWaiting(ctx, ctdf.PassengerEntityDepot, "depot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
