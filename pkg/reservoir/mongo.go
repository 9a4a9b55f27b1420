package reservoir

import (
	"context"
	"errors"
	"time"

	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps passengers in the passengers collection. Claims rely on FindOneAndUpdate
// with the expected status in the filter so exactly one caller can win.
type MongoStore struct {
	Collection *mongo.Collection
}

func NewMongoStore() *MongoStore {
	return &MongoStore{
		Collection: database.GetCollection(database.PassengersCollection),
	}
}

func (m *MongoStore) InsertMany(ctx context.Context, records []*ctdf.PassengerRecord) ([]*ctdf.PassengerRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	documents := make([]interface{}, 0, len(records))
	for _, record := range records {
		documents = append(documents, record)
	}

	_, err := m.Collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil, nil
	}

	var bulkException mongo.BulkWriteException
	if errors.As(err, &bulkException) && bulkException.WriteConcernError == nil && len(bulkException.WriteErrors) > 0 {
		failed := make([]*ctdf.PassengerRecord, 0, len(bulkException.WriteErrors))
		for _, writeError := range bulkException.WriteErrors {
			if writeError.Index >= 0 && writeError.Index < len(records) {
				failed = append(failed, records[writeError.Index])
			}
		}

		return failed, nil
	}

	return records, err
}

func (m *MongoStore) Get(ctx context.Context, identifier string) (*ctdf.PassengerRecord, error) {
	var record *ctdf.PassengerRecord
	err := m.Collection.FindOne(ctx, bson.M{"primaryidentifier": identifier}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}

	return record, err
}

func (m *MongoStore) Find(ctx context.Context, query Query) ([]*ctdf.PassengerRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "spawntime", Value: 1}, {Key: "primaryidentifier", Value: 1}})
	if query.Limit > 0 {
		opts = opts.SetLimit(query.Limit)
	}

	cursor, err := m.Collection.Find(ctx, queryFilter(query), opts)
	if err != nil {
		return nil, err
	}

	var records []*ctdf.PassengerRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}

func (m *MongoStore) ConditionalUpdate(ctx context.Context, identifier string, condition Condition, update Update) (*ctdf.PassengerRecord, error) {
	if !ctdf.CanTransition(condition.Status, update.Status) {
		return nil, nil
	}

	filter := bson.M{
		"primaryidentifier": identifier,
		"status":            condition.Status,
	}
	if !condition.ExpiresAfter.IsZero() {
		filter["expiresat"] = bson.M{"$gt": condition.ExpiresAfter}
	}
	if !condition.SpawnedBy.IsZero() {
		filter["spawntime"] = bson.M{"$lte": condition.SpawnedBy}
	}
	if condition.ClaimedBy != "" {
		filter["claimedby"] = condition.ClaimedBy
	}

	var record *ctdf.PassengerRecord
	err := m.Collection.FindOneAndUpdate(
		ctx,
		filter,
		bson.M{"$set": updateDocument(update)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	return record, err
}

func (m *MongoStore) CountWaiting(ctx context.Context, entityType ctdf.PassengerEntityType, entityRef string) (int64, error) {
	return m.Collection.CountDocuments(ctx, bson.M{
		"entitytype": entityType,
		"entityref":  entityRef,
		"status":     ctdf.PassengerStatusWaiting,
	})
}

func queryFilter(query Query) bson.M {
	filter := bson.M{}

	if query.EntityType != "" {
		filter["entitytype"] = query.EntityType
	}
	if query.EntityRef != "" {
		filter["entityref"] = query.EntityRef
	}
	if query.RouteRef != "" {
		filter["routeref"] = query.RouteRef
	}
	if query.Status != "" {
		filter["status"] = query.Status
	}
	if query.Direction != "" {
		filter["direction"] = query.Direction
	}
	if query.HasArcRange {
		filter["arcposition"] = bson.M{"$gte": query.MinArc, "$lt": query.MaxArc}
	}
	if !query.ExpiredBy.IsZero() {
		filter["expiresat"] = bson.M{"$lte": query.ExpiredBy}
	}

	return filter
}

func updateDocument(update Update) bson.M {
	set := bson.M{"status": update.Status}

	at := update.At
	if at.IsZero() {
		at = time.Now()
	}

	switch update.Status {
	case ctdf.PassengerStatusClaimed:
		set["claimedby"] = update.ClaimedBy
		set["claimedat"] = at
	case ctdf.PassengerStatusBoarded:
		set["boardedat"] = at
	case ctdf.PassengerStatusExpired:
		set["expiredat"] = at
	}

	return set
}
