package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/util"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

var MongoGlobalInstance *MongoInstance

const defaultMongoConnectionString = "mongodb://localhost:27017/"
const defaultMongoDatabase = "ridership"

const (
	PassengersCollection   = "passengers"
	RoutesCollection       = "routes"
	DepotsCollection       = "depots"
	SpawnConfigsCollection = "spawn_configs"
)

func Connect() error {
	return ConnectMongoDB()
}

func ConnectMongoDB() error {
	connectionString := defaultMongoConnectionString
	dbName := defaultMongoDatabase

	env := util.GetEnvironmentVariables()

	if env["RIDERSHIP_MONGODB_CONNECTION"] != "" {
		connectionString = env["RIDERSHIP_MONGODB_CONNECTION"]
	}

	if env["RIDERSHIP_MONGODB_DATABASE"] != "" {
		dbName = env["RIDERSHIP_MONGODB_DATABASE"]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return err
	}

	MongoGlobalInstance = &MongoInstance{
		Client:   client,
		Database: client.Database(dbName),
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return err
	}

	log.Info().Str("database", dbName).Msg("Connected to MongoDB")

	createIndexes()

	return nil
}

func GetCollection(collectionName string) *mongo.Collection {
	return MongoGlobalInstance.Database.Collection(collectionName)
}
