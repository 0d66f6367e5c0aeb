package interfaces

import (
	"context"

	"ridepool/internal/models"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	GetByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Booking, error)
	GetByRideAndStatus(ctx context.Context, rideID primitive.ObjectID, statuses ...models.BookingStatus) ([]*models.Booking, error)
	GetByRideAndPassenger(ctx context.Context, rideID, passengerID primitive.ObjectID) (*models.Booking, error)
	GetByPassenger(ctx context.Context, passengerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error)

	// Transition moves a booking from one of the expected statuses to the
	// target, applying extra field updates in the same atomic write.
	// Returns false when the booking was not in an expected status.
	Transition(ctx context.Context, id primitive.ObjectID, from []models.BookingStatus, to models.BookingStatus, updates map[string]interface{}) (bool, error)

	// ForceUpdate bypasses status guards. Admin override path only; the
	// caller is responsible for the audit record.
	ForceUpdate(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// AssignPickupOrder sets the order exactly once; a booking that
	// already carries one is left untouched.
	AssignPickupOrder(ctx context.Context, id primitive.ObjectID, order int) (bool, error)

	// SeatsHeld sums seats_requested over confirmed and active bookings.
	SeatsHeld(ctx context.Context, rideID primitive.ObjectID) (int, error)
}
