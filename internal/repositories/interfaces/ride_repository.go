package interfaces

import (
	"context"

	"ridepool/internal/models"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RideRepository persists rides. Transition methods are single-document
// atomic operations guarded on the expected current status; they return
// false when the guard missed, so callers can distinguish a lost race
// from an error.
type RideRepository interface {
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	GetByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	GetByStatus(ctx context.Context, status models.RideStatus, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	GetActiveByDriver(ctx context.Context, driverID primitive.ObjectID) (*models.Ride, error)

	// Atomic status transitions
	StartRide(ctx context.Context, id primitive.ObjectID, sessionID string) (bool, error)
	CompleteRide(ctx context.Context, id primitive.ObjectID) (bool, error)
	CancelRide(ctx context.Context, id primitive.ObjectID, reason, cancelledBy string) (bool, error)

	// ReserveSeats decrements available_seats only when enough remain;
	// ReleaseSeats gives them back (capped at total_seats).
	ReserveSeats(ctx context.Context, id primitive.ObjectID, seats int) (bool, error)
	ReleaseSeats(ctx context.Context, id primitive.ObjectID, seats int) error

	// Purge hard-deletes a terminal ride. Privileged, audited by the caller.
	Purge(ctx context.Context, id primitive.ObjectID) error
}
