package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideStatus string

const (
	RideStatusScheduled  RideStatus = "scheduled"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

type Ride struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideNumber         string             `json:"ride_number" bson:"ride_number" validate:"required"`
	DriverID           primitive.ObjectID `json:"driver_id" bson:"driver_id" validate:"required"`
	Origin             Location           `json:"origin" bson:"origin" validate:"required"`
	Destination        Location           `json:"destination" bson:"destination" validate:"required"`
	DepartureTime      time.Time          `json:"departure_time" bson:"departure_time" validate:"required"`
	Status             RideStatus         `json:"status" bson:"status" default:"scheduled"`
	TotalSeats         int                `json:"total_seats" bson:"total_seats" validate:"required,min=1"`
	AvailableSeats     int                `json:"available_seats" bson:"available_seats"`
	TrackingSessionID  string             `json:"tracking_session_id" bson:"tracking_session_id"`
	StartedAt          *time.Time         `json:"started_at" bson:"started_at"`
	CompletedAt        *time.Time         `json:"completed_at" bson:"completed_at"`
	CancelledAt        *time.Time         `json:"cancelled_at" bson:"cancelled_at"`
	CancellationReason string             `json:"cancellation_reason" bson:"cancellation_reason"`
	CancelledBy        string             `json:"cancelled_by" bson:"cancelled_by"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updated_at"`
}

func (r *Ride) IsTerminal() bool {
	return r.Status == RideStatusCompleted || r.Status == RideStatusCancelled
}

// TrackingSession describes an active location-tracking session for a ride.
// StartRide returns the same session when called again on an in-progress ride.
type TrackingSession struct {
	SessionID string             `json:"session_id"`
	RideID    primitive.ObjectID `json:"ride_id"`
	StartedAt time.Time          `json:"started_at"`
	Resumed   bool               `json:"resumed"`
}
