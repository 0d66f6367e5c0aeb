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

type notificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) interfaces.NotificationRepository {
	return &notificationRepository{
		collection: db.Collection("notifications"),
	}
}

// Insert relies on the unique (event_id, user_id) index: a retried
// transition inserting the same event for the same recipient is a no-op.
func (r *notificationRepository) Insert(ctx context.Context, notification *models.Notification) (bool, error) {
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, notification)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}

	return true, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error) {
	var notification models.Notification
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&notification)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return &notification, nil
}

func (r *notificationRepository) GetByUser(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Notification, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []*models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, 0, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return notifications, total, nil
}

func (r *notificationRepository) GetRecentByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]*models.Notification, error) {
	cursor, err := r.collection.Find(
		ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []*models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID primitive.ObjectID) (bool, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "user_id": userID, "read_at": nil},
		bson.M{"$set": bson.M{"read_at": time.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{"user_id": userID, "read_at": nil},
		bson.M{"$set": bson.M{"read_at": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "read_at": nil})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}
