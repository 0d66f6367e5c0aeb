package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	UserRoleDriver    UserRole = "driver"
	UserRolePassenger UserRole = "passenger"
	UserRoleAdmin     UserRole = "admin"
)

type User struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FirstName    string             `json:"first_name" bson:"first_name" validate:"required"`
	LastName     string             `json:"last_name" bson:"last_name"`
	Email        string             `json:"email" bson:"email" validate:"required,email"`
	Phone        string             `json:"phone" bson:"phone"`
	Role         UserRole           `json:"role" bson:"role" validate:"required"`
	DeviceTokens []string           `json:"device_tokens" bson:"device_tokens"`
	IsSuspended  bool               `json:"is_suspended" bson:"is_suspended"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
