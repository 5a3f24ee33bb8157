package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qmaze/qtable"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// stateDoc is the stored shape: BSON has no unsigned ints, so the seed widens to int64.
type stateDoc struct {
	Key       string    `bson:"_id"`
	Seed      int64     `bson:"seed"`
	Values    []int32   `bson:"values"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStore keeps one document per key.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore uses the given database and collection of client.
func NewMongoStore(client *mongo.Client, dbName, collectionName string) *MongoStore {
	return &MongoStore{
		collection: client.Database(dbName).Collection(collectionName),
	}
}

func (ms *MongoStore) Load(ctx context.Context, key string) (state qtable.State, err error) {
	var doc stateDoc
	if err = ms.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return state, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return state, err
	}

	if len(doc.Values) != qtable.Size {
		return state, fmt.Errorf("%w: %d values in document %s", qtable.ErrSnapshotSize, len(doc.Values), key)
	}
	state.Seed = uint32(doc.Seed)
	copy(state.Table[:], doc.Values)
	return state, nil
}

// Save upserts the document for key.
func (ms *MongoStore) Save(ctx context.Context, key string, state qtable.State) error {
	filter := bson.M{"_id": key}
	update := bson.M{
		"$set": bson.M{
			"seed":      int64(state.Seed),
			"values":    state.Table.Values(),
			"updatedAt": time.Now().UTC(),
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := ms.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	logger.Printf("saved %s seed=%d", key, state.Seed)
	return nil
}
