package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationTypeRideStarted         NotificationType = "ride_started"
	NotificationTypeRideCompleted       NotificationType = "ride_completed"
	NotificationTypeRideCancelled       NotificationType = "ride_cancelled"
	NotificationTypePassengerPickedUp   NotificationType = "passenger_picked_up"
	NotificationTypePassengerDroppedOff NotificationType = "passenger_dropped_off"
	NotificationTypeBookingRequested    NotificationType = "booking_requested"
	NotificationTypeBookingConfirmed    NotificationType = "booking_confirmed"
	NotificationTypeBookingDeclined     NotificationType = "booking_declined"
	NotificationTypeBookingCancelled    NotificationType = "booking_cancelled"
	NotificationTypeAchievement         NotificationType = "achievement"
	NotificationTypeSystem              NotificationType = "system"
)

// NotificationPayload is the typed payload of a notification. Each
// notification type has its own variant; DecodeNotificationData matches
// them exhaustively, so adding a type means adding a variant and a case.
type NotificationPayload interface {
	NotificationType() NotificationType
	Title() string
	Body() string
}

type RideStartedPayload struct {
	RideID      primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	DriverName  string             `json:"driver_name" bson:"driver_name"`
	Origin      string             `json:"origin" bson:"origin"`
	Destination string             `json:"destination" bson:"destination"`
	PickupOrder int                `json:"pickup_order" bson:"pickup_order"`
}

func (p RideStartedPayload) NotificationType() NotificationType { return NotificationTypeRideStarted }
func (p RideStartedPayload) Title() string                      { return "Your ride is on the way" }
func (p RideStartedPayload) Body() string {
	return fmt.Sprintf("%s started the ride to %s. You are pickup #%d.", p.DriverName, p.Destination, p.PickupOrder)
}

type RideCompletedPayload struct {
	RideID          primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	DurationMinutes int                `json:"duration_minutes" bson:"duration_minutes"`
}

func (p RideCompletedPayload) NotificationType() NotificationType {
	return NotificationTypeRideCompleted
}
func (p RideCompletedPayload) Title() string { return "Ride completed" }
func (p RideCompletedPayload) Body() string {
	return fmt.Sprintf("Your ride finished after %d minutes. Thanks for riding along.", p.DurationMinutes)
}

type RideCancelledPayload struct {
	RideID primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	Reason string             `json:"reason" bson:"reason"`
}

func (p RideCancelledPayload) NotificationType() NotificationType {
	return NotificationTypeRideCancelled
}
func (p RideCancelledPayload) Title() string { return "Ride cancelled" }
func (p RideCancelledPayload) Body() string {
	return fmt.Sprintf("Your ride was cancelled: %s", p.Reason)
}

type PassengerPickedUpPayload struct {
	RideID        primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	BookingID     primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	PassengerName string             `json:"passenger_name" bson:"passenger_name"`
}

func (p PassengerPickedUpPayload) NotificationType() NotificationType {
	return NotificationTypePassengerPickedUp
}
func (p PassengerPickedUpPayload) Title() string { return "Passenger picked up" }
func (p PassengerPickedUpPayload) Body() string {
	return fmt.Sprintf("%s is now on board.", p.PassengerName)
}

type PassengerDroppedOffPayload struct {
	RideID        primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	BookingID     primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	PassengerName string             `json:"passenger_name" bson:"passenger_name"`
}

func (p PassengerDroppedOffPayload) NotificationType() NotificationType {
	return NotificationTypePassengerDroppedOff
}
func (p PassengerDroppedOffPayload) Title() string { return "Passenger dropped off" }
func (p PassengerDroppedOffPayload) Body() string {
	return fmt.Sprintf("%s reached their stop.", p.PassengerName)
}

type BookingRequestedPayload struct {
	RideID         primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	BookingID      primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	PassengerName  string             `json:"passenger_name" bson:"passenger_name"`
	SeatsRequested int                `json:"seats_requested" bson:"seats_requested"`
}

func (p BookingRequestedPayload) NotificationType() NotificationType {
	return NotificationTypeBookingRequested
}
func (p BookingRequestedPayload) Title() string { return "New booking request" }
func (p BookingRequestedPayload) Body() string {
	return fmt.Sprintf("%s requested %d seat(s) on your ride.", p.PassengerName, p.SeatsRequested)
}

type BookingConfirmedPayload struct {
	RideID    primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	BookingID primitive.ObjectID `json:"booking_id" bson:"booking_id"`
}

func (p BookingConfirmedPayload) NotificationType() NotificationType {
	return NotificationTypeBookingConfirmed
}
func (p BookingConfirmedPayload) Title() string { return "Booking confirmed" }
func (p BookingConfirmedPayload) Body() string  { return "The driver confirmed your seat." }

type BookingDeclinedPayload struct {
	RideID    primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	BookingID primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	Reason    string             `json:"reason" bson:"reason"`
}

func (p BookingDeclinedPayload) NotificationType() NotificationType {
	return NotificationTypeBookingDeclined
}
func (p BookingDeclinedPayload) Title() string { return "Booking declined" }
func (p BookingDeclinedPayload) Body() string {
	return fmt.Sprintf("The driver declined your request: %s", p.Reason)
}

type BookingCancelledPayload struct {
	RideID      primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	BookingID   primitive.ObjectID `json:"booking_id" bson:"booking_id"`
	Reason      string             `json:"reason" bson:"reason"`
	CancelledBy string             `json:"cancelled_by" bson:"cancelled_by"`
}

func (p BookingCancelledPayload) NotificationType() NotificationType {
	return NotificationTypeBookingCancelled
}
func (p BookingCancelledPayload) Title() string { return "Booking cancelled" }
func (p BookingCancelledPayload) Body() string {
	return fmt.Sprintf("Booking cancelled by %s: %s", p.CancelledBy, p.Reason)
}

type AchievementPayload struct {
	Name        string `json:"name" bson:"name"`
	Description string `json:"description" bson:"description"`
}

func (p AchievementPayload) NotificationType() NotificationType { return NotificationTypeAchievement }
func (p AchievementPayload) Title() string                      { return "Achievement unlocked" }
func (p AchievementPayload) Body() string {
	return fmt.Sprintf("%s: %s", p.Name, p.Description)
}

type SystemPayload struct {
	Subject string `json:"subject" bson:"subject"`
	Message string `json:"message" bson:"message"`
}

func (p SystemPayload) NotificationType() NotificationType { return NotificationTypeSystem }
func (p SystemPayload) Title() string                      { return p.Subject }
func (p SystemPayload) Body() string                       { return p.Message }

type Notification struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	EventID   string             `json:"event_id" bson:"event_id" validate:"required"`
	Type      NotificationType   `json:"type" bson:"type" validate:"required"`
	Data      bson.Raw           `json:"data" bson:"data"`
	Title     string             `json:"title" bson:"title"`
	Message   string             `json:"message" bson:"message"`
	ReadAt    *time.Time         `json:"read_at" bson:"read_at"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

func NewNotification(userID primitive.ObjectID, eventID string, payload NotificationPayload) (*Notification, error) {
	data, err := bson.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}

	return &Notification{
		UserID:    userID,
		EventID:   eventID,
		Type:      payload.NotificationType(),
		Data:      data,
		Title:     payload.Title(),
		Message:   payload.Body(),
		CreatedAt: time.Now(),
	}, nil
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Payload decodes the stored data back into its typed variant.
func (n *Notification) Payload() (NotificationPayload, error) {
	return DecodeNotificationData(n.Type, n.Data)
}

func DecodeNotificationData(t NotificationType, raw bson.Raw) (NotificationPayload, error) {
	decode := func(dest NotificationPayload) (NotificationPayload, error) {
		if err := bson.Unmarshal(raw, dest); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
		}
		return dest, nil
	}

	switch t {
	case NotificationTypeRideStarted:
		return decode(&RideStartedPayload{})
	case NotificationTypeRideCompleted:
		return decode(&RideCompletedPayload{})
	case NotificationTypeRideCancelled:
		return decode(&RideCancelledPayload{})
	case NotificationTypePassengerPickedUp:
		return decode(&PassengerPickedUpPayload{})
	case NotificationTypePassengerDroppedOff:
		return decode(&PassengerDroppedOffPayload{})
	case NotificationTypeBookingRequested:
		return decode(&BookingRequestedPayload{})
	case NotificationTypeBookingConfirmed:
		return decode(&BookingConfirmedPayload{})
	case NotificationTypeBookingDeclined:
		return decode(&BookingDeclinedPayload{})
	case NotificationTypeBookingCancelled:
		return decode(&BookingCancelledPayload{})
	case NotificationTypeAchievement:
		return decode(&AchievementPayload{})
	case NotificationTypeSystem:
		return decode(&SystemPayload{})
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
}
