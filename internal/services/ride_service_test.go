package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/utils"
)

func TestCreateRideValidation(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)

	tests := []struct {
		name  string
		input CreateRideInput
	}{
		{
			name: "zero seats",
			input: CreateRideInput{
				Origin:        models.NewPoint(37.77, -122.41),
				Destination:   models.NewPoint(37.80, -122.27),
				DepartureTime: time.Now().Add(time.Hour),
				TotalSeats:    0,
			},
		},
		{
			name: "too many seats",
			input: CreateRideInput{
				Origin:        models.NewPoint(37.77, -122.41),
				Destination:   models.NewPoint(37.80, -122.27),
				DepartureTime: time.Now().Add(time.Hour),
				TotalSeats:    utils.MaxSeatsPerRide + 1,
			},
		},
		{
			name: "departure in the past",
			input: CreateRideInput{
				Origin:        models.NewPoint(37.77, -122.41),
				Destination:   models.NewPoint(37.80, -122.27),
				DepartureTime: time.Now().Add(-time.Hour),
				TotalSeats:    4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.rides.CreateRide(context.Background(), driver.ID, &tt.input)
			if !utils.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStartRideIdempotent(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusConfirmed, 2)

	first, err := env.rides.StartRide(context.Background(), ride.ID, driver.ID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.Resumed {
		t.Fatal("first start should not be a resume")
	}
	if first.SessionID == "" {
		t.Fatal("expected a tracking session id")
	}

	second, err := env.rides.StartRide(context.Background(), ride.ID, driver.ID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !second.Resumed {
		t.Fatal("second start should resume")
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session changed across resume: %q vs %q", second.SessionID, first.SessionID)
	}

	if got := env.notificationCount(t, passenger.ID, models.NotificationTypeRideStarted); got != 1 {
		t.Fatalf("passenger notified %d times, want 1", got)
	}
}

func TestStartRideAssignsPickupOrders(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 6)

	passengers := make([]*models.User, 3)
	for i := range passengers {
		passengers[i] = env.seedUser(t, models.UserRolePassenger)
		booking := env.seedBooking(t, ride.ID, passengers[i].ID, models.BookingStatusConfirmed, 1)
		// Spread acceptance times so the expected order is unambiguous.
		confirmed := time.Now().Add(time.Duration(i-10) * time.Minute)
		env.bookRepo.bookings[booking.ID].ConfirmedAt = &confirmed
	}

	if _, err := env.rides.StartRide(context.Background(), ride.ID, driver.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	seen := make(map[int]bool)
	bookings, err := env.bookRepo.GetByRide(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	for _, b := range bookings {
		if b.PickupOrder == nil {
			t.Fatalf("booking %s has no pickup order", b.ID.Hex())
		}
		if seen[*b.PickupOrder] {
			t.Fatalf("pickup order %d assigned twice", *b.PickupOrder)
		}
		seen[*b.PickupOrder] = true
	}
	for i := 1; i <= len(bookings); i++ {
		if !seen[i] {
			t.Fatalf("pickup order %d missing", i)
		}
	}
}

func TestStartRideWrongDriver(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	other := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)

	_, err := env.rides.StartRide(context.Background(), ride.ID, other.ID)
	if !utils.IsPermissionError(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestStartRideSecondActiveRide(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	scheduled := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)

	_, err := env.rides.StartRide(context.Background(), scheduled.ID, driver.ID)
	if !utils.IsConflictError(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestCompleteRideWithOutstandingPassengers(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	booking := env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusActive, 1)

	_, err := env.rides.CompleteRide(context.Background(), ride.ID, driver.ID)

	var pr *utils.PassengersRemainingError
	if !errors.As(err, &pr) {
		t.Fatalf("expected PassengersRemainingError, got %v", err)
	}
	if len(pr.BookingIDs) != 1 || pr.BookingIDs[0] != booking.ID {
		t.Fatalf("error should name the outstanding booking, got %v", pr.BookingIDs)
	}
}

func TestCompleteRideWithUnresolvedPendingBooking(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	booking := env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusPending, 1)

	_, err := env.rides.CompleteRide(context.Background(), ride.ID, driver.ID)

	var pr *utils.PassengersRemainingError
	if !errors.As(err, &pr) {
		t.Fatalf("expected PassengersRemainingError, got %v", err)
	}
	if len(pr.BookingIDs) != 1 || pr.BookingIDs[0] != booking.ID {
		t.Fatalf("error should name the pending booking, got %v", pr.BookingIDs)
	}

	// Once the driver resolves the request, completion goes through and
	// no non-terminal booking survives on the completed ride.
	if _, err := env.bookings.DeclineBooking(context.Background(), booking.ID, driver.ID, "ride already departed"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	completed, err := env.rides.CompleteRide(context.Background(), ride.ID, driver.ID)
	if err != nil {
		t.Fatalf("complete after decline: %v", err)
	}
	if completed.Status != models.RideStatusCompleted {
		t.Fatalf("ride status = %s, want completed", completed.Status)
	}
	bookings, _ := env.bookRepo.GetByRide(context.Background(), ride.ID)
	for _, b := range bookings {
		switch b.Status {
		case models.BookingStatusCompleted, models.BookingStatusDeclined, models.BookingStatusCancelled:
		default:
			t.Fatalf("booking %s left %s on a completed ride", b.ID.Hex(), b.Status)
		}
	}
}

func TestCompleteRideAfterDropoffs(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	booking := env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusActive, 1)

	if _, err := env.pickup.MarkDroppedOff(context.Background(), ride.ID, booking.ID, driver.ID); err != nil {
		t.Fatalf("dropoff: %v", err)
	}

	completed, err := env.rides.CompleteRide(context.Background(), ride.ID, driver.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.RideStatusCompleted {
		t.Fatalf("ride status = %s, want completed", completed.Status)
	}

	if got := env.notificationCount(t, passenger.ID, models.NotificationTypeRideCompleted); got != 1 {
		t.Fatalf("completion notifications = %d, want 1", got)
	}

	// Completing again is a no-op, not an error.
	again, err := env.rides.CompleteRide(context.Background(), ride.ID, driver.ID)
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if again.Status != models.RideStatusCompleted {
		t.Fatalf("repeat complete status = %s", again.Status)
	}
}

func TestCancelRideCascades(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 6)

	statuses := []models.BookingStatus{
		models.BookingStatusPending,
		models.BookingStatusConfirmed,
		models.BookingStatusActive,
	}
	passengers := make([]*models.User, len(statuses))
	for i, status := range statuses {
		passengers[i] = env.seedUser(t, models.UserRolePassenger)
		env.seedBooking(t, ride.ID, passengers[i].ID, status, 1)
	}

	cancelled, err := env.rides.CancelRide(context.Background(), ride.ID, driver.ID, models.UserRoleDriver, "vehicle breakdown")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.RideStatusCancelled {
		t.Fatalf("ride status = %s, want cancelled", cancelled.Status)
	}

	bookings, _ := env.bookRepo.GetByRide(context.Background(), ride.ID)
	for _, b := range bookings {
		if b.Status != models.BookingStatusCancelled {
			t.Fatalf("booking %s status = %s, want cancelled", b.ID.Hex(), b.Status)
		}
	}

	for _, p := range passengers {
		if got := env.notificationCount(t, p.ID, models.NotificationTypeRideCancelled); got != 1 {
			t.Fatalf("passenger %s notified %d times, want 1", p.ID.Hex(), got)
		}
	}

	// A retried cancel changes nothing and notifies no one twice.
	if _, err := env.rides.CancelRide(context.Background(), ride.ID, driver.ID, models.UserRoleDriver, "vehicle breakdown"); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	for _, p := range passengers {
		if got := env.notificationCount(t, p.ID, models.NotificationTypeRideCancelled); got != 1 {
			t.Fatalf("after retry passenger %s notified %d times, want 1", p.ID.Hex(), got)
		}
	}
}

func TestCancelRideRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)

	_, err := env.rides.CancelRide(context.Background(), ride.ID, driver.ID, models.UserRoleDriver, "")
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPurgeRide(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	admin := env.seedUser(t, models.UserRoleAdmin)

	active := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	if err := env.rides.PurgeRide(context.Background(), active.ID, admin.ID, "cleanup"); !utils.IsConflictError(err) {
		t.Fatalf("purging an active ride should conflict, got %v", err)
	}

	done := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	env.rideRepo.rides[done.ID].Status = models.RideStatusCompleted

	if err := env.rides.PurgeRide(context.Background(), done.ID, admin.ID, "retention policy"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if _, err := env.rideRepo.GetByID(context.Background(), done.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("ride should be gone, got %v", err)
	}

	entries, _, err := env.auditRepo.GetByResource(context.Background(), "ride", done.ID.Hex(), nil)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d (%v)", len(entries), err)
	}
	if entries[0].Action != models.AuditActionPurge || entries[0].Reason != "retention policy" {
		t.Fatalf("audit entry mismatch: %+v", entries[0])
	}
}
