package interfaces

import (
	"context"

	"ridepool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LocationRepository stores driver position samples: the latest sample
// per ride (latest-wins) plus a bounded append-only timeline.
type LocationRepository interface {
	Record(ctx context.Context, sample *models.LocationSample, timelineCap int) error
	GetLatest(ctx context.Context, rideID primitive.ObjectID) (*models.LocationSample, error)
	GetTimeline(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.LocationSample, error)
	DeleteForRide(ctx context.Context, rideID primitive.ObjectID) error
}
