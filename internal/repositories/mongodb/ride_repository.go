package mongodb

import (
	"context"
	"fmt"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/services"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type rideRepository struct {
	collection *mongo.Collection
	cache      services.CacheService
}

func NewRideRepository(db *mongo.Database, cache services.CacheService) interfaces.RideRepository {
	return &rideRepository{
		collection: db.Collection("rides"),
		cache:      cache,
	}
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	ride.ID = primitive.NewObjectID()
	ride.Status = models.RideStatusScheduled
	ride.AvailableSeats = ride.TotalSeats
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = ride.CreatedAt

	_, err := r.collection.InsertOne(ctx, ride)
	if err != nil {
		return fmt.Errorf("failed to create ride: %w", err)
	}

	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	// Cached rides are display hints; transitions below always filter on
	// the stored document, so serving a hit here is safe.
	if ride := r.cache.GetCachedRide(ctx, id); ride != nil {
		return ride, nil
	}

	var ride models.Ride
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ride)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	if ride.Status == models.RideStatusScheduled || ride.Status == models.RideStatusInProgress {
		r.cache.CacheRide(ctx, &ride)
	}

	return &ride, nil
}

func (r *rideRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return nil
}

func (r *rideRepository) GetByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return r.find(ctx, bson.M{"driver_id": driverID}, params)
}

func (r *rideRepository) GetByStatus(ctx context.Context, status models.RideStatus, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return r.find(ctx, bson.M{"status": status}, params)
}

func (r *rideRepository) GetActiveByDriver(ctx context.Context, driverID primitive.ObjectID) (*models.Ride, error) {
	var ride models.Ride
	err := r.collection.FindOne(ctx, bson.M{
		"driver_id": driverID,
		"status":    models.RideStatusInProgress,
	}).Decode(&ride)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active ride for driver: %w", err)
	}

	return &ride, nil
}

// StartRide flips scheduled to in_progress and pins the tracking session
// in the same write. A miss means another caller got there first.
func (r *rideRepository) StartRide(ctx context.Context, id primitive.ObjectID, sessionID string) (bool, error) {
	now := time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.RideStatusScheduled},
		bson.M{"$set": bson.M{
			"status":              models.RideStatusInProgress,
			"tracking_session_id": sessionID,
			"started_at":          now,
			"updated_at":          now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to start ride: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return result.ModifiedCount > 0, nil
}

func (r *rideRepository) CompleteRide(ctx context.Context, id primitive.ObjectID) (bool, error) {
	now := time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.RideStatusInProgress},
		bson.M{"$set": bson.M{
			"status":       models.RideStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete ride: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return result.ModifiedCount > 0, nil
}

func (r *rideRepository) CancelRide(ctx context.Context, id primitive.ObjectID, reason, cancelledBy string) (bool, error) {
	now := time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": bson.M{"$in": bson.A{
			models.RideStatusScheduled,
			models.RideStatusInProgress,
		}}},
		bson.M{"$set": bson.M{
			"status":              models.RideStatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
			"cancelled_by":        cancelledBy,
			"updated_at":          now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel ride: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return result.ModifiedCount > 0, nil
}

func (r *rideRepository) ReserveSeats(ctx context.Context, id primitive.ObjectID, seats int) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "available_seats": bson.M{"$gte": seats}},
		bson.M{
			"$inc": bson.M{"available_seats": -seats},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve seats: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return result.ModifiedCount > 0, nil
}

func (r *rideRepository) ReleaseSeats(ctx context.Context, id primitive.ObjectID, seats int) error {
	// Cap at total_seats via aggregation pipeline update.
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"available_seats": bson.M{"$min": bson.A{
					bson.M{"$add": bson.A{"$available_seats", seats}},
					"$total_seats",
				}},
				"updated_at": time.Now(),
			}}},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return nil
}

func (r *rideRepository) Purge(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "status": bson.M{"$in": bson.A{
		models.RideStatusCompleted,
		models.RideStatusCancelled,
	}}})
	if err != nil {
		return fmt.Errorf("failed to purge ride: %w", err)
	}

	r.cache.InvalidateRide(ctx, id)
	return nil
}

func (r *rideRepository) find(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find rides: %w", err)
	}
	defer cursor.Close(ctx)

	var rides []*models.Ride
	if err := cursor.All(ctx, &rides); err != nil {
		return nil, 0, fmt.Errorf("failed to decode rides: %w", err)
	}

	return rides, total, nil
}
