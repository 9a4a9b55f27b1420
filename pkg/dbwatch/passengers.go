package dbwatch

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"github.com/travigo/ridership/pkg/reservoir"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PassengersWatch invalidates reservoir cache buckets for passenger writes made outside a Reservoir,
// such as manual edits or records removed by the database
type PassengersWatch struct {
	Cache *reservoir.Cache
}

type passengerChange struct {
	OperationType            string                `bson:"operationType"`
	FullDocument             *ctdf.PassengerRecord `bson:"fullDocument"`
	FullDocumentBeforeChange *ctdf.PassengerRecord `bson:"fullDocumentBeforeChange"`
}

func NewPassengersWatch(cache *reservoir.Cache) *PassengersWatch {
	return &PassengersWatch{
		Cache: cache,
	}
}

func (w *PassengersWatch) Run(ctx context.Context) error {
	log.Info().Msg("Starting dbwatch on collection passengers")
	collection := database.GetCollection(database.PassengersCollection)
	matchPipeline := bson.D{
		{
			Key: "$match", Value: bson.D{
				{
					Key: "operationType", Value: bson.D{
						{Key: "$in", Value: bson.A{"update", "replace", "delete"}},
					},
				},
			},
		},
	}

	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := collection.Watch(ctx, mongo.Pipeline{matchPipeline}, opts)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var change passengerChange
		if err := stream.Decode(&change); err != nil {
			log.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		w.handleChange(ctx, change)
	}

	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}

func (w *PassengersWatch) handleChange(ctx context.Context, change passengerChange) {
	var records []*ctdf.PassengerRecord
	if change.FullDocument != nil {
		records = append(records, change.FullDocument)
	}
	if change.FullDocumentBeforeChange != nil {
		records = append(records, change.FullDocumentBeforeChange)
	}

	if len(records) == 0 {
		log.Debug().Str("operation", change.OperationType).Msg("Passenger change without a document, nothing to invalidate")
		return
	}

	w.Cache.InvalidateRecords(ctx, records...)
}
