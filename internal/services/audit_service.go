package services

import (
	"context"

	"ridepool/internal/models"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"
)

type AuditService interface {
	// List returns audit entries, optionally filtered to one resource.
	List(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error)
}

type auditService struct {
	auditRepo interfaces.AuditLogRepository
}

func NewAuditService(auditRepo interfaces.AuditLogRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

func (s *auditService) List(ctx context.Context, resource, resourceID string, params *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	if resource != "" {
		return s.auditRepo.GetByResource(ctx, resource, resourceID, params)
	}
	return s.auditRepo.List(ctx, params)
}
