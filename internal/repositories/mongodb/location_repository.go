package mongodb

import (
	"context"
	"fmt"

	"ridepool/internal/models"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// One document per ride: the latest sample plus a bounded timeline,
// updated in a single atomic write so readers never see them disagree.
type rideLocationDoc struct {
	RideID   primitive.ObjectID      `bson:"ride_id"`
	Latest   models.LocationSample   `bson:"latest"`
	Timeline []models.LocationSample `bson:"timeline"`
}

type locationRepository struct {
	collection *mongo.Collection
}

func NewLocationRepository(db *mongo.Database) interfaces.LocationRepository {
	return &locationRepository{
		collection: db.Collection("ride_locations"),
	}
}

func (r *locationRepository) Record(ctx context.Context, sample *models.LocationSample, timelineCap int) error {
	if timelineCap <= 0 {
		timelineCap = utils.LocationSampleWindow
	}

	upsert := true
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"ride_id": sample.RideID},
		bson.M{
			"$set": bson.M{"latest": sample},
			"$push": bson.M{"timeline": bson.M{
				"$each":  bson.A{sample},
				"$slice": -timelineCap,
			}},
		},
		&options.UpdateOptions{Upsert: &upsert},
	)
	if err != nil {
		return fmt.Errorf("failed to record location sample: %w", err)
	}

	return nil
}

func (r *locationRepository) GetLatest(ctx context.Context, rideID primitive.ObjectID) (*models.LocationSample, error) {
	var doc rideLocationDoc
	err := r.collection.FindOne(
		ctx,
		bson.M{"ride_id": rideID},
		options.FindOne().SetProjection(bson.M{"latest": 1}),
	).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest location: %w", err)
	}

	return &doc.Latest, nil
}

func (r *locationRepository) GetTimeline(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.LocationSample, error) {
	projection := bson.M{"timeline": 1}
	if limit > 0 {
		projection = bson.M{"timeline": bson.M{"$slice": -limit}}
	}

	var doc rideLocationDoc
	err := r.collection.FindOne(
		ctx,
		bson.M{"ride_id": rideID},
		options.FindOne().SetProjection(projection),
	).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get location timeline: %w", err)
	}

	samples := make([]*models.LocationSample, len(doc.Timeline))
	for i := range doc.Timeline {
		samples[i] = &doc.Timeline[i]
	}

	return samples, nil
}

func (r *locationRepository) DeleteForRide(ctx context.Context, rideID primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"ride_id": rideID})
	if err != nil {
		return fmt.Errorf("failed to delete ride locations: %w", err)
	}
	return nil
}
