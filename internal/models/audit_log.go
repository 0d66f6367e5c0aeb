package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionOverride AuditAction = "override"
	AuditActionPurge    AuditAction = "purge"
)

// AuditLog records privileged mutations. Admin overrides always carry a
// non-empty reason and the old/new field values.
type AuditLog struct {
	ID         primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	ActorID    primitive.ObjectID     `json:"actor_id" bson:"actor_id" validate:"required"`
	Action     AuditAction            `json:"action" bson:"action" validate:"required"`
	Resource   string                 `json:"resource" bson:"resource" validate:"required"`
	ResourceID string                 `json:"resource_id" bson:"resource_id"`
	Reason     string                 `json:"reason" bson:"reason" validate:"required"`
	OldValues  map[string]interface{} `json:"old_values" bson:"old_values"`
	NewValues  map[string]interface{} `json:"new_values" bson:"new_values"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
}
