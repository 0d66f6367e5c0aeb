package mongodb

import (
	"context"
	"fmt"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookingRepository struct {
	collection *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) interfaces.BookingRepository {
	return &bookingRepository{
		collection: db.Collection("bookings"),
	}
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	booking.ID = primitive.NewObjectID()
	booking.Status = models.BookingStatusPending
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	_, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError("booking", "passenger already has a booking on this ride")
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

func (r *bookingRepository) GetByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Booking, error) {
	return r.findAll(ctx, bson.M{"ride_id": rideID})
}

func (r *bookingRepository) GetByRideAndStatus(ctx context.Context, rideID primitive.ObjectID, statuses ...models.BookingStatus) ([]*models.Booking, error) {
	return r.findAll(ctx, bson.M{
		"ride_id": rideID,
		"status":  bson.M{"$in": statuses},
	})
}

func (r *bookingRepository) GetByRideAndPassenger(ctx context.Context, rideID, passengerID primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := r.collection.FindOne(ctx, bson.M{
		"ride_id":      rideID,
		"passenger_id": passengerID,
	}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking for passenger: %w", err)
	}

	return &booking, nil
}

func (r *bookingRepository) GetByPassenger(ctx context.Context, passengerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	filter := bson.M{"passenger_id": passengerID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, total, nil
}

func (r *bookingRepository) Transition(ctx context.Context, id primitive.ObjectID, from []models.BookingStatus, to models.BookingStatus, updates map[string]interface{}) (bool, error) {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range updates {
		set[k] = v
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition booking: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *bookingRepository) ForceUpdate(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	if err != nil {
		return fmt.Errorf("failed to force-update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return utils.ErrNotFound
	}

	return nil
}

func (r *bookingRepository) AssignPickupOrder(ctx context.Context, id primitive.ObjectID, order int) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "pickup_order": nil},
		bson.M{"$set": bson.M{
			"pickup_order": order,
			"updated_at":   time.Now(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to assign pickup order: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *bookingRepository) SeatsHeld(ctx context.Context, rideID primitive.ObjectID) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ride_id": rideID,
			"status": bson.M{"$in": bson.A{
				models.BookingStatusConfirmed,
				models.BookingStatusActive,
			}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"seats": bson.M{"$sum": "$seats_requested"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum held seats: %w", err)
	}
	defer cursor.Close(ctx)

	var result []struct {
		Seats int `bson:"seats"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return 0, fmt.Errorf("failed to decode held seats: %w", err)
	}
	if len(result) == 0 {
		return 0, nil
	}

	return result[0].Seats, nil
}

func (r *bookingRepository) findAll(ctx context.Context, filter bson.M) ([]*models.Booking, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}
