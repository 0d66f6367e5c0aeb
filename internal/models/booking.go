package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusDeclined  BookingStatus = "declined"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideID             primitive.ObjectID `json:"ride_id" bson:"ride_id" validate:"required"`
	PassengerID        primitive.ObjectID `json:"passenger_id" bson:"passenger_id" validate:"required"`
	SeatsRequested     int                `json:"seats_requested" bson:"seats_requested" validate:"required,min=1"`
	Status             BookingStatus      `json:"status" bson:"status" default:"pending"`
	PickupOrder        *int               `json:"pickup_order" bson:"pickup_order"`
	PickupLocation     Location           `json:"pickup_location" bson:"pickup_location" validate:"required"`
	DropoffLocation    Location           `json:"dropoff_location" bson:"dropoff_location" validate:"required"`
	DeclineReason      string             `json:"decline_reason" bson:"decline_reason"`
	CancellationReason string             `json:"cancellation_reason" bson:"cancellation_reason"`
	CancelledBy        string             `json:"cancelled_by" bson:"cancelled_by"`
	ConfirmedAt        *time.Time         `json:"confirmed_at" bson:"confirmed_at"`
	PickedUpAt         *time.Time         `json:"picked_up_at" bson:"picked_up_at"`
	DroppedOffAt       *time.Time         `json:"dropped_off_at" bson:"dropped_off_at"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updated_at"`
}

func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingStatusCompleted, BookingStatusDeclined, BookingStatusCancelled:
		return true
	}
	return false
}

// HoldsSeats reports whether the booking currently counts against the
// ride's seat capacity.
func (b *Booking) HoldsSeats() bool {
	return b.Status == BookingStatusConfirmed || b.Status == BookingStatusActive
}
