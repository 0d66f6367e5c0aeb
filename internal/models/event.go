package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LifecycleEvent is one ride or booking transition, fanned out to every
// affected recipient. EventID is stable across retries of the same
// transition so fanout stays idempotent per (event, recipient).
type LifecycleEvent struct {
	EventID    string               `json:"event_id"`
	RideID     primitive.ObjectID   `json:"ride_id"`
	BookingID  *primitive.ObjectID  `json:"booking_id,omitempty"`
	Payload    NotificationPayload  `json:"payload"`
	Recipients []primitive.ObjectID `json:"recipients"`
	OccurredAt time.Time            `json:"occurred_at"`
}
