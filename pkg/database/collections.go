package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func createIndexes() {
	CreatePassengerIndexes(GetCollection(PassengersCollection))
	createMetadataIndexes()
}

// CreatePassengerIndexes backs the reservoir queries: depot FIFO lookups, route arc scans
// and the expiry sweep
func CreatePassengerIndexes(passengersCollection *mongo.Collection) {
	passengersIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "primaryidentifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "entityref", Value: 1},
				{Key: "status", Value: 1},
				{Key: "spawntime", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "entityref", Value: 1},
				{Key: "status", Value: 1},
				{Key: "arcposition", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expiresat", Value: 1},
			},
		},
	}

	opts := options.CreateIndexes()
	_, err := passengersCollection.Indexes().CreateMany(context.Background(), passengersIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createMetadataIndexes() {
	for _, collectionName := range []string{RoutesCollection, DepotsCollection} {
		collection := GetCollection(collectionName)
		index := []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "primaryidentifier", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		}

		_, err := collection.Indexes().CreateMany(context.Background(), index, options.CreateIndexes())
		if err != nil {
			log.Error().Err(err).Str("collection", collectionName).Msg("Creating Index")
		}
	}

	spawnConfigsCollection := GetCollection(SpawnConfigsCollection)
	_, err := spawnConfigsCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entityref", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
