package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/observability"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PickupService interface {
	// AssignPickupOrders gives every confirmed booking on the ride a
	// stable 1..N pickup position. Orders stick: re-running after a
	// partial failure fills the gaps without renumbering anyone.
	AssignPickupOrders(ctx context.Context, rideID primitive.ObjectID) ([]*models.Booking, error)

	MarkPickedUp(ctx context.Context, rideID, bookingID, driverID primitive.ObjectID) (*models.Booking, error)
	MarkDroppedOff(ctx context.Context, rideID, bookingID, driverID primitive.ObjectID) (*models.Booking, error)

	// Outstanding lists bookings that still block ride completion:
	// passengers not yet dropped off and pending requests the driver
	// never resolved.
	Outstanding(ctx context.Context, rideID primitive.ObjectID) ([]*models.Booking, error)
}

type pickupService struct {
	bookRepo interfaces.BookingRepository
	rideRepo interfaces.RideRepository
	userRepo interfaces.UserRepository
	notifier NotificationService
	realtime RealtimeService
	logger   *logger.Logger
}

func NewPickupService(
	bookRepo interfaces.BookingRepository,
	rideRepo interfaces.RideRepository,
	userRepo interfaces.UserRepository,
	notifier NotificationService,
	realtime RealtimeService,
	log *logger.Logger,
) PickupService {
	return &pickupService{
		bookRepo: bookRepo,
		rideRepo: rideRepo,
		userRepo: userRepo,
		notifier: notifier,
		realtime: realtime,
		logger:   log.WithField("component", "pickup"),
	}
}

func (s *pickupService) AssignPickupOrders(ctx context.Context, rideID primitive.ObjectID) ([]*models.Booking, error) {
	bookings, err := s.bookRepo.GetByRideAndStatus(ctx, rideID, models.BookingStatusConfirmed, models.BookingStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings for sequencing: %w", err)
	}

	// Acceptance order decides the sequence; booking id breaks ties so
	// the ordering is total and reproducible.
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		at, bt := confirmedAt(a), confirmedAt(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.ID.Hex() < b.ID.Hex()
	})

	taken := make(map[int]bool, len(bookings))
	for _, b := range bookings {
		if b.PickupOrder != nil {
			taken[*b.PickupOrder] = true
		}
	}

	next := 1
	for _, b := range bookings {
		if b.PickupOrder != nil {
			continue
		}
		for taken[next] {
			next++
		}
		assigned, err := s.bookRepo.AssignPickupOrder(ctx, b.ID, next)
		if err != nil {
			return nil, fmt.Errorf("failed to assign pickup order: %w", err)
		}
		if assigned {
			order := next
			b.PickupOrder = &order
			taken[next] = true
		} else {
			// Someone else assigned concurrently; reload the truth.
			fresh, err := s.bookRepo.GetByID(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			b.PickupOrder = fresh.PickupOrder
			if b.PickupOrder != nil {
				taken[*b.PickupOrder] = true
			}
		}
	}

	sort.Slice(bookings, func(i, j int) bool {
		return pickupOrderOf(bookings[i]) < pickupOrderOf(bookings[j])
	})
	return bookings, nil
}

func confirmedAt(b *models.Booking) time.Time {
	if b.ConfirmedAt != nil {
		return *b.ConfirmedAt
	}
	return b.CreatedAt
}

func pickupOrderOf(b *models.Booking) int {
	if b.PickupOrder == nil {
		return int(^uint(0) >> 1)
	}
	return *b.PickupOrder
}

func (s *pickupService) MarkPickedUp(ctx context.Context, rideID, bookingID, driverID primitive.ObjectID) (*models.Booking, error) {
	booking, ride, err := s.loadForBoarding(ctx, rideID, bookingID, driverID)
	if err != nil {
		return nil, err
	}

	// Repeated taps from the driver app are expected; an already-active
	// booking is success, not an error, and must not fan out again.
	if booking.Status == models.BookingStatusActive {
		return booking, nil
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, utils.NewConflictError("booking", fmt.Sprintf("cannot pick up a %s booking", booking.Status))
	}

	now := time.Now()
	transitioned, err := s.bookRepo.Transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusConfirmed},
		models.BookingStatusActive,
		map[string]interface{}{"picked_up_at": now},
	)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Lost the race to a concurrent tap; treat like the idempotent path.
		return s.bookRepo.GetByID(ctx, bookingID)
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(models.BookingStatusActive)).Inc()

	booking.Status = models.BookingStatusActive
	booking.PickedUpAt = &now

	s.announceBoarding(ctx, ride, booking, models.PassengerPickedUpPayload{
		RideID:    rideID,
		BookingID: bookingID,
	})
	return booking, nil
}

func (s *pickupService) MarkDroppedOff(ctx context.Context, rideID, bookingID, driverID primitive.ObjectID) (*models.Booking, error) {
	booking, ride, err := s.loadForBoarding(ctx, rideID, bookingID, driverID)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.BookingStatusCompleted {
		return booking, nil
	}
	if booking.Status != models.BookingStatusActive {
		return nil, utils.NewConflictError("booking", fmt.Sprintf("cannot drop off a %s booking", booking.Status))
	}

	now := time.Now()
	transitioned, err := s.bookRepo.Transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusActive},
		models.BookingStatusCompleted,
		map[string]interface{}{"dropped_off_at": now},
	)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return s.bookRepo.GetByID(ctx, bookingID)
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(models.BookingStatusCompleted)).Inc()

	booking.Status = models.BookingStatusCompleted
	booking.DroppedOffAt = &now

	s.announceBoarding(ctx, ride, booking, models.PassengerDroppedOffPayload{
		RideID:    rideID,
		BookingID: bookingID,
	})
	return booking, nil
}

func (s *pickupService) Outstanding(ctx context.Context, rideID primitive.ObjectID) ([]*models.Booking, error) {
	return s.bookRepo.GetByRideAndStatus(ctx, rideID,
		models.BookingStatusPending,
		models.BookingStatusConfirmed,
		models.BookingStatusActive,
	)
}

func (s *pickupService) loadForBoarding(ctx context.Context, rideID, bookingID, driverID primitive.ObjectID) (*models.Booking, *models.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, nil, err
	}
	if ride.DriverID != driverID {
		return nil, nil, utils.NewPermissionError("only the ride's driver can record boarding")
	}
	if ride.Status != models.RideStatusInProgress {
		return nil, nil, utils.ErrRideNotActive
	}

	booking, err := s.bookRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking.RideID != rideID {
		return nil, nil, utils.NewValidationError("booking_id", "booking does not belong to this ride")
	}
	return booking, ride, nil
}

// announceBoarding notifies the passenger and pushes the transition onto
// the ride's change feed. The event id is derived from the booking and
// target status, so a retried transition cannot double-notify.
func (s *pickupService) announceBoarding(ctx context.Context, ride *models.Ride, booking *models.Booking, payload models.NotificationPayload) {
	if named, ok := s.passengerName(ctx, booking.PassengerID); ok {
		switch p := payload.(type) {
		case models.PassengerPickedUpPayload:
			p.PassengerName = named
			payload = p
		case models.PassengerDroppedOffPayload:
			p.PassengerName = named
			payload = p
		}
	}

	event := &models.LifecycleEvent{
		EventID:    fmt.Sprintf("%s:%s:%s", booking.ID.Hex(), payload.NotificationType(), booking.Status),
		RideID:     ride.ID,
		BookingID:  &booking.ID,
		Payload:    payload,
		Recipients: []primitive.ObjectID{booking.PassengerID},
		OccurredAt: time.Now(),
	}
	if err := s.notifier.Fanout(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID.Hex()).Error("boarding fanout failed")
	}

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpUpdate,
		Collection: "bookings",
		DocumentID: booking.ID.Hex(),
		RideID:     ride.ID,
		Fields: map[string]interface{}{
			"status":       booking.Status,
			"pickup_order": booking.PickupOrder,
		},
	})
}

func (s *pickupService) passengerName(ctx context.Context, passengerID primitive.ObjectID) (string, bool) {
	user, err := s.userRepo.GetByID(ctx, passengerID)
	if err != nil {
		s.logger.WithError(err).Debug("passenger lookup for notification failed")
		return "", false
	}
	return user.FullName(), true
}
