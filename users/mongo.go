package users

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDirectory struct {
	client *mongo.Client
	col    *mongo.Collection
}

var _ Directory = (*MongoDirectory)(nil)

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// NewMongoDirectory owns client and disconnects it on Close.
func NewMongoDirectory(ctx context.Context, client *mongo.Client, database, collection string) (*MongoDirectory, error) {
	col := client.Database(database).Collection(collection)
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_id_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("create user_id index: %w", err)
	}
	return &MongoDirectory{client: client, col: col}, nil
}

func (d *MongoDirectory) Upsert(ctx context.Context, u Record) (bool, error) {
	filter := bson.M{"user_id": u.UserID}
	update := bson.M{
		"$set":         bson.M{"user_id": u.UserID, "username": u.Username},
		"$setOnInsert": bson.M{"first_seen": time.Now().UTC()},
	}
	res, err := d.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert user %d: %w", u.UserID, err)
	}
	return res.UpsertedCount > 0, nil
}

// Users stored before first_seen existed have no timestamp and always count.
func seenBy(asOf time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"first_seen": bson.M{"$exists": false}},
		bson.M{"first_seen": bson.M{"$lte": asOf.UTC()}},
	}}
}

func (d *MongoDirectory) Count(ctx context.Context, asOf time.Time) (int, error) {
	n, err := d.col.CountDocuments(ctx, seenBy(asOf))
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

func (d *MongoDirectory) Each(ctx context.Context, asOf time.Time, fn func(Record) error) error {
	opts := options.Find().
		SetProjection(bson.M{"user_id": 1, "username": 1, "first_seen": 1}).
		SetSort(bson.D{{Key: "user_id", Value: 1}})
	cur, err := d.col.Find(ctx, seenBy(asOf), opts)
	if err != nil {
		return fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u Record
		if err := cur.Decode(&u); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		if err := fn(u); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (d *MongoDirectory) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
