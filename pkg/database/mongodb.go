package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	Config   *DatabaseConfig
}

type DatabaseConfig struct {
	URI            string
	Database       string
	MaxPoolSize    int
	MinPoolSize    int
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
}

func NewMongoDB(config *DatabaseConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(uint64(config.MaxPoolSize)).
		SetMinPoolSize(uint64(config.MinPoolSize)).
		SetSocketTimeout(config.SocketTimeout).
		SetConnectTimeout(config.ConnectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	return &MongoDB{
		Client:   client,
		Database: client.Database(config.Database),
		Config:   config,
	}, nil
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.Database.Collection(name)
}

func (m *MongoDB) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the indexes the coordination core relies on:
// the fanout idempotency key and the hot lookup paths.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	unique := true

	indexes := map[string][]mongo.IndexModel{
		"notifications": {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: &options.IndexOptions{Unique: &unique},
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "read_at", Value: 1}}},
		},
		"rides": {
			{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "departure_time", Value: 1}}},
		},
		"bookings": {
			{
				Keys:    bson.D{{Key: "ride_id", Value: 1}, {Key: "passenger_id", Value: 1}},
				Options: &options.IndexOptions{Unique: &unique},
			},
			{Keys: bson.D{{Key: "passenger_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"ride_locations": {
			{
				Keys:    bson.D{{Key: "ride_id", Value: 1}},
				Options: &options.IndexOptions{Unique: &unique},
			},
		},
		"audit_logs": {
			{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := m.Database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}

	return nil
}
