package metadata

import (
	"context"
	"errors"

	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type MongoProvider struct {
	Routes *mongo.Collection
	Depots *mongo.Collection
}

func NewMongoProvider() *MongoProvider {
	return &MongoProvider{
		Routes: database.GetCollection(database.RoutesCollection),
		Depots: database.GetCollection(database.DepotsCollection),
	}
}

func (m *MongoProvider) GetRoute(ctx context.Context, identifier string) (*ctdf.Route, error) {
	var route *ctdf.Route
	err := m.Routes.FindOne(ctx, bson.M{"primaryidentifier": identifier}).Decode(&route)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("route", identifier)
	} else if err != nil {
		return nil, err
	}

	return route, nil
}

func (m *MongoProvider) GetDepot(ctx context.Context, identifier string) (*ctdf.Depot, error) {
	var depot *ctdf.Depot
	err := m.Depots.FindOne(ctx, bson.M{"primaryidentifier": identifier}).Decode(&depot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("depot", identifier)
	} else if err != nil {
		return nil, err
	}

	return depot, nil
}

func (m *MongoProvider) ListRoutes(ctx context.Context) ([]*ctdf.Route, error) {
	cursor, err := m.Routes.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	var routes []*ctdf.Route
	if err := cursor.All(ctx, &routes); err != nil {
		return nil, err
	}

	return routes, nil
}

func (m *MongoProvider) ListDepots(ctx context.Context) ([]*ctdf.Depot, error) {
	cursor, err := m.Depots.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	var depots []*ctdf.Depot
	if err := cursor.All(ctx, &depots); err != nil {
		return nil, err
	}

	return depots, nil
}
