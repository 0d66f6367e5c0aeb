package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/observability"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateRideInput struct {
	Origin        models.Location
	Destination   models.Location
	DepartureTime time.Time
	TotalSeats    int
}

type RideService interface {
	CreateRide(ctx context.Context, driverID primitive.ObjectID, input *CreateRideInput) (*models.Ride, error)
	GetRide(ctx context.Context, rideID primitive.ObjectID) (*models.Ride, error)
	GetRidesByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Ride, int64, error)
	GetRidesByStatus(ctx context.Context, status models.RideStatus, params *utils.PaginationParams) ([]*models.Ride, int64, error)

	// StartRide moves a scheduled ride to in_progress and opens its
	// tracking session. Calling it again on the same in-progress ride
	// returns the existing session with Resumed set, with no second
	// notification wave.
	StartRide(ctx context.Context, rideID, driverID primitive.ObjectID) (*models.TrackingSession, error)

	// CompleteRide closes an in-progress ride. Refused while any
	// passenger has not been dropped off.
	CompleteRide(ctx context.Context, rideID, driverID primitive.ObjectID) (*models.Ride, error)

	// CancelRide terminates the ride and cascades cancellation to every
	// non-terminal booking, notifying each passenger exactly once.
	CancelRide(ctx context.Context, rideID, actorID primitive.ObjectID, actorRole models.UserRole, reason string) (*models.Ride, error)

	// PurgeRide hard-deletes a terminal ride and its location trail.
	// Admin only; the reason lands in the audit log.
	PurgeRide(ctx context.Context, rideID, adminID primitive.ObjectID, reason string) error
}

type rideService struct {
	rideRepo  interfaces.RideRepository
	bookRepo  interfaces.BookingRepository
	userRepo  interfaces.UserRepository
	auditRepo interfaces.AuditLogRepository
	pickup    PickupService
	tracking  TrackingService
	notifier  NotificationService
	realtime  RealtimeService
	cache     CacheService
	logger    *logger.Logger
}

func NewRideService(
	rideRepo interfaces.RideRepository,
	bookRepo interfaces.BookingRepository,
	userRepo interfaces.UserRepository,
	auditRepo interfaces.AuditLogRepository,
	pickup PickupService,
	tracking TrackingService,
	notifier NotificationService,
	realtime RealtimeService,
	cacheService CacheService,
	log *logger.Logger,
) RideService {
	return &rideService{
		rideRepo:  rideRepo,
		bookRepo:  bookRepo,
		userRepo:  userRepo,
		auditRepo: auditRepo,
		pickup:    pickup,
		tracking:  tracking,
		notifier:  notifier,
		realtime:  realtime,
		cache:     cacheService,
		logger:    log.WithField("component", "rides"),
	}
}

func (s *rideService) CreateRide(ctx context.Context, driverID primitive.ObjectID, input *CreateRideInput) (*models.Ride, error) {
	if input.TotalSeats < 1 || input.TotalSeats > utils.MaxSeatsPerRide {
		return nil, utils.NewValidationError("total_seats", fmt.Sprintf("must be between 1 and %d", utils.MaxSeatsPerRide))
	}
	if input.DepartureTime.Before(time.Now()) {
		return nil, utils.NewValidationError("departure_time", "must be in the future")
	}

	now := time.Now()
	ride := &models.Ride{
		RideNumber:     generateRideNumber(),
		DriverID:       driverID,
		Origin:         input.Origin,
		Destination:    input.Destination,
		DepartureTime:  input.DepartureTime,
		Status:         models.RideStatusScheduled,
		TotalSeats:     input.TotalSeats,
		AvailableSeats: input.TotalSeats,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpInsert,
		Collection: "rides",
		DocumentID: ride.ID.Hex(),
		RideID:     ride.ID,
		Fields:     map[string]interface{}{"status": ride.Status},
	})
	return ride, nil
}

func generateRideNumber() string {
	return fmt.Sprintf("%s-%s-%04d", utils.RideNumberPrefix, time.Now().Format("20060102"), rand.Intn(10000))
}

func (s *rideService) GetRide(ctx context.Context, rideID primitive.ObjectID) (*models.Ride, error) {
	return s.rideRepo.GetByID(ctx, rideID)
}

func (s *rideService) GetRidesByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return s.rideRepo.GetByDriver(ctx, driverID, params)
}

func (s *rideService) GetRidesByStatus(ctx context.Context, status models.RideStatus, params *utils.PaginationParams) ([]*models.Ride, int64, error) {
	return s.rideRepo.GetByStatus(ctx, status, params)
}

func (s *rideService) StartRide(ctx context.Context, rideID, driverID primitive.ObjectID) (*models.TrackingSession, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, utils.NewPermissionError("only the ride's driver can start it")
	}

	// Resume path: a second start on an in-progress ride hands back the
	// session already in flight.
	if ride.Status == models.RideStatusInProgress {
		return &models.TrackingSession{
			SessionID: ride.TrackingSessionID,
			RideID:    ride.ID,
			StartedAt: startedAtOf(ride),
			Resumed:   true,
		}, nil
	}
	if ride.Status != models.RideStatusScheduled {
		return nil, utils.NewConflictError("ride", fmt.Sprintf("cannot start a %s ride", ride.Status))
	}

	if active, err := s.rideRepo.GetActiveByDriver(ctx, driverID); err == nil && active != nil && active.ID != rideID {
		return nil, utils.NewConflictError("ride", "driver already has a ride in progress")
	} else if err != nil && err != utils.ErrNotFound {
		return nil, err
	}

	sessionID := uuid.NewString()
	started, err := s.transitionWithRetry(ctx, "start ride", func(ctx context.Context) (bool, error) {
		return s.rideRepo.StartRide(ctx, rideID, sessionID)
	})
	if err != nil {
		return nil, err
	}
	if !started {
		// Lost the race: a concurrent start won. Resolve idempotently.
		fresh, err := s.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == models.RideStatusInProgress {
			return &models.TrackingSession{
				SessionID: fresh.TrackingSessionID,
				RideID:    fresh.ID,
				StartedAt: startedAtOf(fresh),
				Resumed:   true,
			}, nil
		}
		return nil, utils.NewConflictError("ride", fmt.Sprintf("cannot start a %s ride", fresh.Status))
	}
	observability.TransitionsTotal.WithLabelValues("ride", string(models.RideStatusInProgress)).Inc()

	now := time.Now()
	ride.Status = models.RideStatusInProgress
	ride.TrackingSessionID = sessionID
	ride.StartedAt = &now

	session := &models.TrackingSession{
		SessionID: sessionID,
		RideID:    rideID,
		StartedAt: now,
	}

	if err := s.cache.Set(ctx, utils.CacheKeyDriverRide+driverID.Hex(), rideID.Hex(), utils.TrackingSessionTTL); err != nil {
		s.logger.WithError(err).Debug("active ride cache write failed")
	}
	if err := s.cache.InvalidateRide(ctx, rideID); err != nil {
		s.logger.WithError(err).Debug("ride cache invalidation failed")
	}

	bookings, err := s.pickup.AssignPickupOrders(ctx, rideID)
	if err != nil {
		// Start has committed; sequencing recovers on the next call.
		s.logger.WithError(err).WithField("ride_id", rideID.Hex()).Error("pickup sequencing failed after start")
		bookings = nil
	}

	// The origin seeds the trail so subscribers see a position before
	// the first driver report.
	s.tracking.StartSampler(ride, session)
	initial := &LocationUpdate{
		Latitude:  ride.Origin.Latitude(),
		Longitude: ride.Origin.Longitude(),
	}
	if _, err := s.tracking.UpdateLocation(ctx, rideID, driverID, initial); err != nil {
		s.logger.WithError(err).Debug("initial location sample failed")
	}

	s.announceStart(ctx, ride, bookings)

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpUpdate,
		Collection: "rides",
		DocumentID: rideID.Hex(),
		RideID:     rideID,
		Fields: map[string]interface{}{
			"status":              models.RideStatusInProgress,
			"tracking_session_id": sessionID,
		},
	})

	return session, nil
}

// announceStart tells each confirmed passenger the ride is moving and
// where they sit in the pickup sequence. The event id is stable per
// ride, so a crashed-and-retried start cannot notify anyone twice.
func (s *rideService) announceStart(ctx context.Context, ride *models.Ride, bookings []*models.Booking) {
	driverName := ""
	if driver, err := s.userRepo.GetByID(ctx, ride.DriverID); err == nil {
		driverName = driver.FullName()
	}

	eventID := "ride:" + ride.ID.Hex() + ":started"
	for _, booking := range bookings {
		order := 0
		if booking.PickupOrder != nil {
			order = *booking.PickupOrder
		}
		event := &models.LifecycleEvent{
			EventID:   eventID,
			RideID:    ride.ID,
			BookingID: &booking.ID,
			Payload: models.RideStartedPayload{
				RideID:      ride.ID,
				DriverName:  driverName,
				Destination: ride.Destination.Address,
				Origin:      ride.Origin.Address,
				PickupOrder: order,
			},
			Recipients: []primitive.ObjectID{booking.PassengerID},
			OccurredAt: time.Now(),
		}
		if err := s.notifier.Fanout(ctx, event); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID.Hex()).Error("ride start fanout failed")
		}
	}
}

func (s *rideService) CompleteRide(ctx context.Context, rideID, driverID primitive.ObjectID) (*models.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, utils.NewPermissionError("only the ride's driver can complete it")
	}
	if ride.Status == models.RideStatusCompleted {
		return ride, nil
	}
	if ride.Status != models.RideStatusInProgress {
		return nil, utils.ErrRideNotActive
	}

	outstanding, err := s.pickup.Outstanding(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if len(outstanding) > 0 {
		ids := make([]primitive.ObjectID, len(outstanding))
		for i, b := range outstanding {
			ids[i] = b.ID
		}
		return nil, &utils.PassengersRemainingError{RideID: rideID, BookingIDs: ids}
	}

	completed, err := s.transitionWithRetry(ctx, "complete ride", func(ctx context.Context) (bool, error) {
		return s.rideRepo.CompleteRide(ctx, rideID)
	})
	if err != nil {
		return nil, err
	}
	if !completed {
		fresh, err := s.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == models.RideStatusCompleted {
			return fresh, nil
		}
		return nil, utils.NewConflictError("ride", fmt.Sprintf("cannot complete a %s ride", fresh.Status))
	}
	observability.TransitionsTotal.WithLabelValues("ride", string(models.RideStatusCompleted)).Inc()

	now := time.Now()
	ride.Status = models.RideStatusCompleted
	ride.CompletedAt = &now

	s.tracking.StopSampler(rideID)
	s.clearDriverCaches(ctx, ride)

	duration := int(now.Sub(startedAtOf(ride)).Minutes())
	s.announceTerminal(ctx, ride, models.RideCompletedPayload{
		RideID:          rideID,
		DurationMinutes: duration,
	}, "ride:"+rideID.Hex()+":completed",
		models.BookingStatusCompleted)

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpUpdate,
		Collection: "rides",
		DocumentID: rideID.Hex(),
		RideID:     rideID,
		Fields:     map[string]interface{}{"status": models.RideStatusCompleted},
	})
	return ride, nil
}

func (s *rideService) CancelRide(ctx context.Context, rideID, actorID primitive.ObjectID, actorRole models.UserRole, reason string) (*models.Ride, error) {
	if reason == "" {
		return nil, utils.NewValidationError("reason", "cancellation reason is required")
	}
	if len(reason) > utils.MaxReasonLength {
		return nil, utils.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", utils.MaxReasonLength))
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if actorRole != models.UserRoleAdmin && ride.DriverID != actorID {
		return nil, utils.NewPermissionError("only the ride's driver or an admin can cancel it")
	}
	if ride.Status == models.RideStatusCancelled {
		return ride, nil
	}
	if ride.IsTerminal() {
		return nil, utils.NewConflictError("ride", fmt.Sprintf("cannot cancel a %s ride", ride.Status))
	}

	cancelled, err := s.transitionWithRetry(ctx, "cancel ride", func(ctx context.Context) (bool, error) {
		return s.rideRepo.CancelRide(ctx, rideID, reason, string(actorRole))
	})
	if err != nil {
		return nil, err
	}
	if !cancelled {
		fresh, err := s.rideRepo.GetByID(ctx, rideID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == models.RideStatusCancelled {
			return fresh, nil
		}
		return nil, utils.NewConflictError("ride", fmt.Sprintf("cannot cancel a %s ride", fresh.Status))
	}
	observability.TransitionsTotal.WithLabelValues("ride", string(models.RideStatusCancelled)).Inc()

	now := time.Now()
	ride.Status = models.RideStatusCancelled
	ride.CancelledAt = &now
	ride.CancellationReason = reason
	ride.CancelledBy = string(actorRole)

	s.tracking.StopSampler(rideID)
	s.clearDriverCaches(ctx, ride)

	s.cascadeCancellation(ctx, ride, reason)

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpUpdate,
		Collection: "rides",
		DocumentID: rideID.Hex(),
		RideID:     rideID,
		Fields: map[string]interface{}{
			"status": models.RideStatusCancelled,
			"reason": reason,
		},
	})
	return ride, nil
}

// cascadeCancellation terminates every booking the ride still carries.
// Each passenger hears about it once even if the cascade is re-run after
// a partial failure: the shared event id dedupes the fanout, and the
// status guard skips bookings already cancelled.
func (s *rideService) cascadeCancellation(ctx context.Context, ride *models.Ride, reason string) {
	bookings, err := s.bookRepo.GetByRideAndStatus(ctx, ride.ID,
		models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusActive)
	if err != nil {
		s.logger.WithError(err).WithField("ride_id", ride.ID.Hex()).Error("failed to load bookings for cascade")
		return
	}

	eventID := "ride:" + ride.ID.Hex() + ":cancelled"
	for _, booking := range bookings {
		_, err := s.bookRepo.Transition(ctx, booking.ID,
			[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusActive},
			models.BookingStatusCancelled,
			map[string]interface{}{
				"cancellation_reason": reason,
				"cancelled_by":        "system",
			},
		)
		if err != nil {
			observability.TransitionConflictsTotal.WithLabelValues("booking").Inc()
			s.logger.WithError(err).WithField("booking_id", booking.ID.Hex()).Error("cascade booking cancellation failed")
			continue
		}

		event := &models.LifecycleEvent{
			EventID:   eventID,
			RideID:    ride.ID,
			BookingID: &booking.ID,
			Payload: models.RideCancelledPayload{
				RideID: ride.ID,
				Reason: reason,
			},
			Recipients: []primitive.ObjectID{booking.PassengerID},
			OccurredAt: time.Now(),
		}
		if err := s.notifier.Fanout(ctx, event); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID.Hex()).Error("cancellation fanout failed")
		}

		s.realtime.Publish(ctx, ChangeEvent{
			Op:         ChangeOpUpdate,
			Collection: "bookings",
			DocumentID: booking.ID.Hex(),
			RideID:     ride.ID,
			Fields:     map[string]interface{}{"status": models.BookingStatusCancelled},
		})
	}
}

// announceTerminal fans a terminal ride event out to passengers whose
// bookings ended in the given statuses.
func (s *rideService) announceTerminal(ctx context.Context, ride *models.Ride, payload models.NotificationPayload, eventID string, statuses ...models.BookingStatus) {
	bookings, err := s.bookRepo.GetByRideAndStatus(ctx, ride.ID, statuses...)
	if err != nil {
		s.logger.WithError(err).WithField("ride_id", ride.ID.Hex()).Error("failed to load bookings for terminal fanout")
		return
	}
	if len(bookings) == 0 {
		return
	}

	recipients := make([]primitive.ObjectID, len(bookings))
	for i, b := range bookings {
		recipients[i] = b.PassengerID
	}
	event := &models.LifecycleEvent{
		EventID:    eventID,
		RideID:     ride.ID,
		Payload:    payload,
		Recipients: recipients,
		OccurredAt: time.Now(),
	}
	if err := s.notifier.Fanout(ctx, event); err != nil {
		s.logger.WithError(err).WithField("ride_id", ride.ID.Hex()).Error("terminal fanout failed")
	}
}

func (s *rideService) PurgeRide(ctx context.Context, rideID, adminID primitive.ObjectID, reason string) error {
	if reason == "" {
		return utils.NewValidationError("reason", "purge reason is required")
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if !ride.IsTerminal() {
		return utils.NewConflictError("ride", "only completed or cancelled rides can be purged")
	}

	if err := s.tracking.DeleteForRide(ctx, rideID); err != nil {
		return fmt.Errorf("failed to purge ride locations: %w", err)
	}
	if err := s.rideRepo.Purge(ctx, rideID); err != nil {
		return fmt.Errorf("failed to purge ride: %w", err)
	}
	s.clearDriverCaches(ctx, ride)

	entry := &models.AuditLog{
		ActorID:    adminID,
		Action:     models.AuditActionPurge,
		Resource:   "ride",
		ResourceID: rideID.Hex(),
		Reason:     reason,
		OldValues: map[string]interface{}{
			"ride_number": ride.RideNumber,
			"status":      ride.Status,
			"driver_id":   ride.DriverID.Hex(),
		},
		CreatedAt: time.Now(),
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("ride_id", rideID.Hex()).Error("purge audit write failed")
	}

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpDelete,
		Collection: "rides",
		DocumentID: rideID.Hex(),
		RideID:     rideID,
	})
	return nil
}

// transitionWithRetry retries a conditional write on transient storage
// errors. A guard miss (false, nil) is not retried; that is a settled
// outcome, not a failure.
func (s *rideService) transitionWithRetry(ctx context.Context, op string, fn func(context.Context) (bool, error)) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= utils.TransitionMaxAttempts; attempt++ {
		ok, err := fn(ctx)
		if err == nil {
			return ok, nil
		}
		lastErr = err
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
		}).Warn("transition attempt failed")

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(utils.TransitionRetryDelay):
		}
	}
	return false, &utils.RetryableError{Op: op, Attempts: utils.TransitionMaxAttempts, Err: lastErr}
}

func (s *rideService) clearDriverCaches(ctx context.Context, ride *models.Ride) {
	if err := s.cache.Delete(ctx, utils.CacheKeyDriverRide+ride.DriverID.Hex()); err != nil {
		s.logger.WithError(err).Debug("driver cache clear failed")
	}
	if err := s.cache.InvalidateRide(ctx, ride.ID); err != nil {
		s.logger.WithError(err).Debug("ride cache invalidation failed")
	}
}

func startedAtOf(ride *models.Ride) time.Time {
	if ride.StartedAt != nil {
		return *ride.StartedAt
	}
	return ride.CreatedAt
}
