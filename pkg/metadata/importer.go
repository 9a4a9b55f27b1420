package metadata

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Import upserts every route and depot from source into the Mongo collections
func (m *MongoProvider) Import(ctx context.Context, source Provider) error {
	routes, err := source.ListRoutes(ctx)
	if err != nil {
		return err
	}

	var routeOperations []mongo.WriteModel
	for _, route := range routes {
		routeOperations = append(routeOperations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"primaryidentifier": route.PrimaryIdentifier}).
			SetReplacement(route).
			SetUpsert(true))
	}

	if len(routeOperations) > 0 {
		if _, err := m.Routes.BulkWrite(ctx, routeOperations, &options.BulkWriteOptions{}); err != nil {
			return err
		}
	}

	depots, err := source.ListDepots(ctx)
	if err != nil {
		return err
	}

	var depotOperations []mongo.WriteModel
	for _, depot := range depots {
		depotOperations = append(depotOperations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"primaryidentifier": depot.PrimaryIdentifier}).
			SetReplacement(depot).
			SetUpsert(true))
	}

	if len(depotOperations) > 0 {
		if _, err := m.Depots.BulkWrite(ctx, depotOperations, &options.BulkWriteOptions{}); err != nil {
			return err
		}
	}

	log.Info().Int("routes", len(routes)).Int("depots", len(depots)).Msg("Imported metadata")

	return nil
}
