package services

import (
	"context"
	"fmt"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/observability"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestBookingInput struct {
	SeatsRequested  int
	PickupLocation  models.Location
	DropoffLocation models.Location
}

type BookingService interface {
	// RequestBooking opens a pending booking on a scheduled ride. A
	// passenger gets at most one booking per ride.
	RequestBooking(ctx context.Context, rideID, passengerID primitive.ObjectID, input *RequestBookingInput) (*models.Booking, error)

	// ApproveBooking confirms a pending booking, reserving its seats.
	// The reservation is atomic against the ride's remaining capacity.
	ApproveBooking(ctx context.Context, bookingID, driverID primitive.ObjectID) (*models.Booking, error)

	// DeclineBooking refuses a pending booking with a reason.
	DeclineBooking(ctx context.Context, bookingID, driverID primitive.ObjectID, reason string) (*models.Booking, error)

	// CancelBooking withdraws a booking. Seats held by a confirmed
	// booking go back to the ride.
	CancelBooking(ctx context.Context, bookingID, actorID primitive.ObjectID, actorRole models.UserRole, reason string) (*models.Booking, error)

	// AdminOverrideBooking force-writes booking fields past the status
	// guards. Requires a reason; the old and new values are audited.
	AdminOverrideBooking(ctx context.Context, bookingID, adminID primitive.ObjectID, reason string, updates map[string]interface{}) (*models.Booking, error)

	GetBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.Booking, error)
	GetBookingsByPassenger(ctx context.Context, passengerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error)
	GetBookingsForRide(ctx context.Context, rideID, requesterID primitive.ObjectID, requesterRole models.UserRole) ([]*models.Booking, error)
}

type bookingService struct {
	bookRepo  interfaces.BookingRepository
	rideRepo  interfaces.RideRepository
	userRepo  interfaces.UserRepository
	auditRepo interfaces.AuditLogRepository
	notifier  NotificationService
	realtime  RealtimeService
	logger    *logger.Logger
}

func NewBookingService(
	bookRepo interfaces.BookingRepository,
	rideRepo interfaces.RideRepository,
	userRepo interfaces.UserRepository,
	auditRepo interfaces.AuditLogRepository,
	notifier NotificationService,
	realtime RealtimeService,
	log *logger.Logger,
) BookingService {
	return &bookingService{
		bookRepo:  bookRepo,
		rideRepo:  rideRepo,
		userRepo:  userRepo,
		auditRepo: auditRepo,
		notifier:  notifier,
		realtime:  realtime,
		logger:    log.WithField("component", "bookings"),
	}
}

func (s *bookingService) RequestBooking(ctx context.Context, rideID, passengerID primitive.ObjectID, input *RequestBookingInput) (*models.Booking, error) {
	if input.SeatsRequested < 1 || input.SeatsRequested > utils.MaxSeatsPerBooking {
		return nil, utils.NewValidationError("seats_requested", fmt.Sprintf("must be between 1 and %d", utils.MaxSeatsPerBooking))
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == passengerID {
		return nil, utils.NewValidationError("passenger_id", "a driver cannot book their own ride")
	}
	if ride.Status != models.RideStatusScheduled {
		return nil, utils.NewConflictError("ride", fmt.Sprintf("cannot book a %s ride", ride.Status))
	}
	if input.SeatsRequested > ride.TotalSeats {
		return nil, utils.NewValidationError("seats_requested", "exceeds the ride's capacity")
	}

	now := time.Now()
	booking := &models.Booking{
		RideID:          rideID,
		PassengerID:     passengerID,
		SeatsRequested:  input.SeatsRequested,
		Status:          models.BookingStatusPending,
		PickupLocation:  input.PickupLocation,
		DropoffLocation: input.DropoffLocation,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The unique (ride_id, passenger_id) index turns a repeat request
	// into a ConflictError here.
	if err := s.bookRepo.Create(ctx, booking); err != nil {
		return nil, err
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(models.BookingStatusPending)).Inc()

	s.notifyOne(ctx, ride.DriverID, &models.LifecycleEvent{
		EventID:   "booking:" + booking.ID.Hex() + ":requested",
		RideID:    rideID,
		BookingID: &booking.ID,
		Payload: models.BookingRequestedPayload{
			RideID:         rideID,
			BookingID:      booking.ID,
			PassengerName:  s.nameOf(ctx, passengerID),
			SeatsRequested: input.SeatsRequested,
		},
	})

	s.realtime.Publish(ctx, ChangeEvent{
		Op:          ChangeOpInsert,
		Collection:  "bookings",
		DocumentID:  booking.ID.Hex(),
		RideID:      rideID,
		RecipientID: ride.DriverID,
		Fields:      map[string]interface{}{"status": booking.Status, "seats_requested": booking.SeatsRequested},
	})
	return booking, nil
}

func (s *bookingService) ApproveBooking(ctx context.Context, bookingID, driverID primitive.ObjectID) (*models.Booking, error) {
	booking, ride, err := s.loadForDecision(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusConfirmed {
		return booking, nil
	}
	if booking.Status != models.BookingStatusPending {
		return nil, utils.NewConflictError("booking", fmt.Sprintf("cannot approve a %s booking", booking.Status))
	}

	// Seats first. The decrement only lands when enough remain, so an
	// oversubscribed ride refuses here rather than going negative.
	reserved, err := s.rideRepo.ReserveSeats(ctx, ride.ID, booking.SeatsRequested)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, utils.NewConflictError("ride", "not enough seats remaining")
	}

	now := time.Now()
	confirmed, err := s.bookRepo.Transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusPending},
		models.BookingStatusConfirmed,
		map[string]interface{}{"confirmed_at": now},
	)
	if err != nil || !confirmed {
		// Give the seats back; the booking moved under us or the write failed.
		if relErr := s.rideRepo.ReleaseSeats(ctx, ride.ID, booking.SeatsRequested); relErr != nil {
			s.logger.WithError(relErr).WithField("booking_id", bookingID.Hex()).Error("seat release after failed approval")
		}
		if err != nil {
			return nil, err
		}
		observability.TransitionConflictsTotal.WithLabelValues("booking").Inc()
		return s.bookRepo.GetByID(ctx, bookingID)
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(models.BookingStatusConfirmed)).Inc()

	booking.Status = models.BookingStatusConfirmed
	booking.ConfirmedAt = &now

	s.notifyOne(ctx, booking.PassengerID, &models.LifecycleEvent{
		EventID:   "booking:" + bookingID.Hex() + ":confirmed",
		RideID:    ride.ID,
		BookingID: &bookingID,
		Payload: models.BookingConfirmedPayload{
			RideID:    ride.ID,
			BookingID: bookingID,
		},
	})

	s.publishBookingUpdate(ctx, booking)
	return booking, nil
}

func (s *bookingService) DeclineBooking(ctx context.Context, bookingID, driverID primitive.ObjectID, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, utils.NewValidationError("reason", "decline reason is required")
	}

	booking, ride, err := s.loadForDecision(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusDeclined {
		return booking, nil
	}
	if booking.Status != models.BookingStatusPending {
		return nil, utils.NewConflictError("booking", fmt.Sprintf("cannot decline a %s booking", booking.Status))
	}

	declined, err := s.bookRepo.Transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusPending},
		models.BookingStatusDeclined,
		map[string]interface{}{"decline_reason": reason},
	)
	if err != nil {
		return nil, err
	}
	if !declined {
		observability.TransitionConflictsTotal.WithLabelValues("booking").Inc()
		return s.bookRepo.GetByID(ctx, bookingID)
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(models.BookingStatusDeclined)).Inc()

	booking.Status = models.BookingStatusDeclined
	booking.DeclineReason = reason

	s.notifyOne(ctx, booking.PassengerID, &models.LifecycleEvent{
		EventID:   "booking:" + bookingID.Hex() + ":declined",
		RideID:    ride.ID,
		BookingID: &bookingID,
		Payload: models.BookingDeclinedPayload{
			RideID:    ride.ID,
			BookingID: bookingID,
			Reason:    reason,
		},
	})

	s.publishBookingUpdate(ctx, booking)
	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID, actorID primitive.ObjectID, actorRole models.UserRole, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, utils.NewValidationError("reason", "cancellation reason is required")
	}

	booking, err := s.bookRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorRole != models.UserRoleAdmin && booking.PassengerID != actorID {
		return nil, utils.NewPermissionError("only the booking's passenger or an admin can cancel it")
	}
	if booking.Status == models.BookingStatusCancelled {
		return booking, nil
	}
	// A passenger cannot bail out mid-ride on their own; an admin can
	// still pull an aboard booking when support steps in.
	if booking.Status == models.BookingStatusActive && actorRole != models.UserRoleAdmin {
		return nil, utils.NewConflictError("booking", "cannot cancel a booking already aboard")
	}
	if booking.IsTerminal() {
		return nil, utils.NewConflictError("booking", fmt.Sprintf("cannot cancel a %s booking", booking.Status))
	}

	heldSeats := booking.HoldsSeats()

	cancelled, err := s.bookRepo.Transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusActive},
		models.BookingStatusCancelled,
		map[string]interface{}{
			"cancellation_reason": reason,
			"cancelled_by":        string(actorRole),
		},
	)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		observability.TransitionConflictsTotal.WithLabelValues("booking").Inc()
		return s.bookRepo.GetByID(ctx, bookingID)
	}
	observability.TransitionsTotal.WithLabelValues("booking", string(models.BookingStatusCancelled)).Inc()

	booking.Status = models.BookingStatusCancelled
	booking.CancellationReason = reason
	booking.CancelledBy = string(actorRole)

	if heldSeats {
		if err := s.rideRepo.ReleaseSeats(ctx, booking.RideID, booking.SeatsRequested); err != nil {
			s.logger.WithError(err).WithField("booking_id", bookingID.Hex()).Error("seat release after cancellation failed")
		}
	}

	if ride, err := s.rideRepo.GetByID(ctx, booking.RideID); err == nil {
		s.notifyOne(ctx, ride.DriverID, &models.LifecycleEvent{
			EventID:   "booking:" + bookingID.Hex() + ":cancelled",
			RideID:    booking.RideID,
			BookingID: &bookingID,
			Payload: models.BookingCancelledPayload{
				RideID:      booking.RideID,
				BookingID:   bookingID,
				Reason:      reason,
				CancelledBy: string(actorRole),
			},
		})
	}

	s.publishBookingUpdate(ctx, booking)
	return booking, nil
}

func (s *bookingService) AdminOverrideBooking(ctx context.Context, bookingID, adminID primitive.ObjectID, reason string, updates map[string]interface{}) (*models.Booking, error) {
	if reason == "" {
		return nil, utils.NewValidationError("reason", "override reason is required")
	}
	if len(updates) == 0 {
		return nil, utils.NewValidationError("updates", "override needs at least one field")
	}

	before, err := s.bookRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := s.bookRepo.ForceUpdate(ctx, bookingID, updates); err != nil {
		return nil, err
	}

	after, err := s.bookRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	oldValues := map[string]interface{}{
		"status":          before.Status,
		"seats_requested": before.SeatsRequested,
		"pickup_order":    before.PickupOrder,
	}
	entry := &models.AuditLog{
		ActorID:    adminID,
		Action:     models.AuditActionOverride,
		Resource:   "booking",
		ResourceID: bookingID.Hex(),
		Reason:     reason,
		OldValues:  oldValues,
		NewValues:  updates,
		CreatedAt:  time.Now(),
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID.Hex()).Error("override audit write failed")
	}

	s.notifyOne(ctx, after.PassengerID, &models.LifecycleEvent{
		EventID:   fmt.Sprintf("booking:%s:override:%d", bookingID.Hex(), time.Now().Unix()),
		RideID:    after.RideID,
		BookingID: &bookingID,
		Payload: models.SystemPayload{
			Subject: "Booking updated",
			Message: "An administrator adjusted your booking: " + reason,
		},
	})

	s.publishBookingUpdate(ctx, after)
	return after, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.Booking, error) {
	return s.bookRepo.GetByID(ctx, bookingID)
}

func (s *bookingService) GetBookingsByPassenger(ctx context.Context, passengerID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Booking, int64, error) {
	return s.bookRepo.GetByPassenger(ctx, passengerID, params)
}

func (s *bookingService) GetBookingsForRide(ctx context.Context, rideID, requesterID primitive.ObjectID, requesterRole models.UserRole) ([]*models.Booking, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if requesterRole != models.UserRoleAdmin && ride.DriverID != requesterID {
		return nil, utils.NewPermissionError("only the ride's driver or an admin can list its bookings")
	}
	return s.bookRepo.GetByRide(ctx, rideID)
}

func (s *bookingService) loadForDecision(ctx context.Context, bookingID, driverID primitive.ObjectID) (*models.Booking, *models.Ride, error) {
	booking, err := s.bookRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	ride, err := s.rideRepo.GetByID(ctx, booking.RideID)
	if err != nil {
		return nil, nil, err
	}
	if ride.DriverID != driverID {
		return nil, nil, utils.NewPermissionError("only the ride's driver can decide this booking")
	}
	if ride.IsTerminal() {
		return nil, nil, utils.NewConflictError("ride", fmt.Sprintf("ride is already %s", ride.Status))
	}
	return booking, ride, nil
}

func (s *bookingService) notifyOne(ctx context.Context, recipient primitive.ObjectID, event *models.LifecycleEvent) {
	event.Recipients = []primitive.ObjectID{recipient}
	event.OccurredAt = time.Now()
	if err := s.notifier.Fanout(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_id", event.EventID).Error("booking fanout failed")
	}
}

func (s *bookingService) publishBookingUpdate(ctx context.Context, booking *models.Booking) {
	s.realtime.Publish(ctx, ChangeEvent{
		Op:          ChangeOpUpdate,
		Collection:  "bookings",
		DocumentID:  booking.ID.Hex(),
		RideID:      booking.RideID,
		RecipientID: booking.PassengerID,
		Fields: map[string]interface{}{
			"status":       booking.Status,
			"pickup_order": booking.PickupOrder,
		},
	})
}

func (s *bookingService) nameOf(ctx context.Context, userID primitive.ObjectID) string {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "A passenger"
	}
	return user.FullName()
}
