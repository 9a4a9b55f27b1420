package dbwatch

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConfigInvalidator drops a cached spawn config
type ConfigInvalidator interface {
	Invalidate(ctx context.Context, entityRef string) error
}

// SpawnConfigsWatch makes edited spawn configs take effect without waiting for the cache TTL
type SpawnConfigsWatch struct {
	Configs ConfigInvalidator
}

type spawnConfigChange struct {
	OperationType string            `bson:"operationType"`
	FullDocument  *ctdf.SpawnConfig `bson:"fullDocument"`
}

func NewSpawnConfigsWatch(configs ConfigInvalidator) *SpawnConfigsWatch {
	return &SpawnConfigsWatch{
		Configs: configs,
	}
}

func (w *SpawnConfigsWatch) Run(ctx context.Context) error {
	log.Info().Msg("Starting dbwatch on collection spawn_configs")
	collection := database.GetCollection(database.SpawnConfigsCollection)
	matchPipeline := bson.D{
		{
			Key: "$match", Value: bson.D{
				{
					Key: "operationType", Value: bson.D{
						{Key: "$in", Value: bson.A{"insert", "update", "replace"}},
					},
				},
			},
		},
	}

	stream, err := collection.Watch(ctx, mongo.Pipeline{matchPipeline}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var change spawnConfigChange
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

func (w *SpawnConfigsWatch) handleChange(ctx context.Context, change spawnConfigChange) {
	if change.FullDocument == nil || change.FullDocument.EntityRef == "" {
		return
	}

	log.Info().Str("entity", change.FullDocument.EntityRef).Str("operation", change.OperationType).Msg("Spawn config changed")

	if err := w.Configs.Invalidate(ctx, change.FullDocument.EntityRef); err != nil {
		log.Error().Err(err).Str("entity", change.FullDocument.EntityRef).Msg("Failed to invalidate spawn config")
	}
}
