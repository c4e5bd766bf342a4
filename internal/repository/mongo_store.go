package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRecord struct {
	Key       string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Body      bson.Raw  `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps each collection in a MongoDB collection of the same
// name; the JSON body is stored as a native sub-document.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	body, _, err := s.load(ctx, collection, key)
	return body, err
}

func (s *MongoStore) Upsert(ctx context.Context, collection, key string, body []byte) error {
	doc, err := toBSON(body)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{"body": doc, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *MongoStore) Scan(ctx context.Context, collection string, match func(key string, body []byte) bool) ([]Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var rec mongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		body, err := fromBSON(rec.Body)
		if err != nil {
			return nil, err
		}
		if match != nil && !match(rec.Key, body) {
			continue
		}
		docs = append(docs, Document{Collection: collection, Key: rec.Key, Body: body, Version: rec.Version})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error) {
	return update(ctx, s, collection, key, fn)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) load(ctx context.Context, collection, key string) ([]byte, int64, error) {
	var rec mongoRecord
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	switch {
	case err == nil:
		body, err := fromBSON(rec.Body)
		return body, rec.Version, err
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, 0, ErrNotFound
	default:
		return nil, 0, fmt.Errorf("find %s/%s: %w", collection, key, err)
	}
}

func (s *MongoStore) swap(ctx context.Context, collection, key string, body []byte, version int64) (bool, error) {
	doc, err := toBSON(body)
	if err != nil {
		return false, err
	}
	coll := s.db.Collection(collection)
	now := time.Now().UTC()

	if version == 0 {
		_, err := coll.InsertOne(ctx, bson.D{
			{Key: "_id", Value: key},
			{Key: "version", Value: int64(1)},
			{Key: "body", Value: doc},
			{Key: "updated_at", Value: now},
		})
		switch {
		case err == nil:
			return true, nil
		case mongo.IsDuplicateKeyError(err):
			return false, nil
		default:
			return false, fmt.Errorf("insert %s/%s: %w", collection, key, err)
		}
	}

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": key, "version": version},
		bson.M{"$set": bson.M{"body": doc, "version": version + 1, "updated_at": now}},
	)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}
	return res.MatchedCount == 1, nil
}

func toBSON(body []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

func fromBSON(raw bson.Raw) ([]byte, error) {
	body, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return body, nil
}
