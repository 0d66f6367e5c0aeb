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
)

type auditLogRepository struct {
	collection *mongo.Collection
}

func NewAuditLogRepository(db *mongo.Database) interfaces.AuditLogRepository {
	return &auditLogRepository{
		collection: db.Collection("audit_logs"),
	}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

func (r *auditLogRepository) GetByResource(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	return r.find(ctx, bson.M{"resource": resource, "resource_id": resourceID}, params)
}

func (r *auditLogRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	return r.find(ctx, bson.M{}, params)
}

func (r *auditLogRepository) find(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.FindOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find audit logs: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AuditLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("failed to decode audit logs: %w", err)
	}

	return entries, total, nil
}
