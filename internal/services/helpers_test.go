package services

import (
	"context"
	"testing"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/models"
	"ridepool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testEnv struct {
	rideRepo  *fakeRideRepo
	bookRepo  *fakeBookingRepo
	locRepo   *fakeLocationRepo
	noteRepo  *fakeNotificationRepo
	userRepo  *fakeUserRepo
	auditRepo *fakeAuditRepo
	cache     *fakeCache

	realtime RealtimeService
	notifier NotificationService
	tracking TrackingService
	pickup   PickupService
	rides    RideService
	bookings BookingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		rideRepo:  newFakeRideRepo(),
		bookRepo:  newFakeBookingRepo(),
		locRepo:   newFakeLocationRepo(),
		noteRepo:  newFakeNotificationRepo(),
		userRepo:  newFakeUserRepo(),
		auditRepo: newFakeAuditRepo(),
		cache:     newFakeCache(),
	}

	log := logger.Default()
	env.realtime = NewRealtimeService(nil, env.cache, env.rideRepo, env.bookRepo, env.locRepo, env.noteRepo, log)
	env.notifier = NewNotificationService(env.noteRepo, env.userRepo, env.cache, env.realtime, nil, nil, nil, log)
	env.tracking = NewTrackingService(env.locRepo, env.rideRepo, env.realtime, &config.TrackingConfig{
		SampleInterval: time.Minute,
		RatePerSecond:  1000,
		RateBurst:      1000,
		TimelineCap:    50,
	}, log)
	env.pickup = NewPickupService(env.bookRepo, env.rideRepo, env.userRepo, env.notifier, env.realtime, log)
	env.rides = NewRideService(env.rideRepo, env.bookRepo, env.userRepo, env.auditRepo, env.pickup, env.tracking, env.notifier, env.realtime, env.cache, log)
	env.bookings = NewBookingService(env.bookRepo, env.rideRepo, env.userRepo, env.auditRepo, env.notifier, env.realtime, log)

	t.Cleanup(env.tracking.Shutdown)
	return env
}

func (env *testEnv) seedUser(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		FirstName: "Test",
		LastName:  string(role),
		Email:     string(role) + "@example.com",
		Role:      role,
	}
	if err := env.userRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (env *testEnv) seedRide(t *testing.T, driverID primitive.ObjectID, status models.RideStatus, seats int) *models.Ride {
	t.Helper()
	now := time.Now()
	ride := &models.Ride{
		RideNumber:     "RP-TEST-0001",
		DriverID:       driverID,
		Origin:         models.NewPoint(37.7749, -122.4194),
		Destination:    models.NewPoint(37.8044, -122.2712),
		DepartureTime:  now.Add(time.Hour),
		Status:         status,
		TotalSeats:     seats,
		AvailableSeats: seats,
		CreatedAt:      now,
	}
	if status == models.RideStatusInProgress {
		started := now.Add(-30 * time.Minute)
		ride.StartedAt = &started
		ride.TrackingSessionID = "session-test"
	}
	if err := env.rideRepo.Create(context.Background(), ride); err != nil {
		t.Fatalf("seed ride: %v", err)
	}
	return ride
}

func (env *testEnv) seedBooking(t *testing.T, rideID, passengerID primitive.ObjectID, status models.BookingStatus, seats int) *models.Booking {
	t.Helper()
	now := time.Now()
	booking := &models.Booking{
		RideID:          rideID,
		PassengerID:     passengerID,
		SeatsRequested:  seats,
		Status:          status,
		PickupLocation:  models.NewPoint(37.78, -122.41),
		DropoffLocation: models.NewPoint(37.80, -122.27),
		CreatedAt:       now,
	}
	if status != models.BookingStatusPending {
		confirmed := now.Add(-time.Minute)
		booking.ConfirmedAt = &confirmed
	}
	if err := env.bookRepo.Create(context.Background(), booking); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return booking
}

func (env *testEnv) notificationCount(t *testing.T, userID primitive.ObjectID, notificationType models.NotificationType) int {
	t.Helper()
	rows, err := env.noteRepo.GetRecentByUser(context.Background(), userID, 1000)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	count := 0
	for _, row := range rows {
		if row.Type == notificationType {
			count++
		}
	}
	return count
}
