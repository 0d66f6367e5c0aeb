package interfaces

import (
	"context"

	"ridepool/internal/models"
	"ridepool/internal/utils"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	GetByResource(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error)
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.AuditLog, int64, error)
}
