package interfaces

import (
	"context"

	"ridepool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
}
