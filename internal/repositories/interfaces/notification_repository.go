package interfaces

import (
	"context"

	"ridepool/internal/models"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationRepository interface {
	// Insert creates the row unless one already exists for the same
	// (event_id, user_id). Returns false when the row was already there,
	// which keeps fanout idempotent under retried transitions.
	Insert(ctx context.Context, notification *models.Notification) (bool, error)

	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error)
	GetByUser(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Notification, int64, error)
	GetRecentByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]*models.Notification, error)

	// MarkRead sets read_at once; returns false if already read or missing.
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) (bool, error)
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error)
}
