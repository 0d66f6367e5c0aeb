package services

import (
	"context"
	"testing"

	"ridepool/internal/models"
	"ridepool/internal/utils"
)

func bookingInput(seats int) *RequestBookingInput {
	return &RequestBookingInput{
		SeatsRequested:  seats,
		PickupLocation:  models.NewPoint(37.78, -122.41),
		DropoffLocation: models.NewPoint(37.80, -122.27),
	}
}

func TestRequestBookingGuards(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	ctx := context.Background()

	if _, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(0)); !utils.IsValidationError(err) {
		t.Fatalf("zero seats: got %v", err)
	}
	if _, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(utils.MaxSeatsPerBooking+1)); !utils.IsValidationError(err) {
		t.Fatalf("too many seats: got %v", err)
	}
	if _, err := env.bookings.RequestBooking(ctx, ride.ID, driver.ID, bookingInput(1)); !utils.IsValidationError(err) {
		t.Fatalf("driver booking own ride: got %v", err)
	}

	inProgress := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	if _, err := env.bookings.RequestBooking(ctx, inProgress.ID, passenger.ID, bookingInput(1)); !utils.IsConflictError(err) {
		t.Fatalf("booking an active ride: got %v", err)
	}

	booking, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(2))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if booking.Status != models.BookingStatusPending {
		t.Fatalf("status = %s, want pending", booking.Status)
	}
	if got := env.notificationCount(t, driver.ID, models.NotificationTypeBookingRequested); got != 1 {
		t.Fatalf("driver request notifications = %d, want 1", got)
	}

	// One booking per passenger per ride.
	if _, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(1)); !utils.IsConflictError(err) {
		t.Fatalf("duplicate request: got %v", err)
	}
}

func TestApproveBookingReservesSeats(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 3)
	ctx := context.Background()

	booking, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(2))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	confirmed, err := env.bookings.ApproveBooking(ctx, booking.ID, driver.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}
	if confirmed.ConfirmedAt == nil {
		t.Fatal("confirmed_at not set")
	}

	fresh, _ := env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 1 {
		t.Fatalf("available seats = %d, want 1", fresh.AvailableSeats)
	}
	if got := env.notificationCount(t, passenger.ID, models.NotificationTypeBookingConfirmed); got != 1 {
		t.Fatalf("confirmation notifications = %d, want 1", got)
	}

	// A second approval is a no-op, not a second reservation.
	if _, err := env.bookings.ApproveBooking(ctx, booking.ID, driver.ID); err != nil {
		t.Fatalf("repeat approve: %v", err)
	}
	fresh, _ = env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 1 {
		t.Fatalf("seats after repeat approve = %d, want 1", fresh.AvailableSeats)
	}
}

func TestApproveBookingSeatExhaustion(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 2)
	ctx := context.Background()

	first := env.seedUser(t, models.UserRolePassenger)
	second := env.seedUser(t, models.UserRolePassenger)

	b1, err := env.bookings.RequestBooking(ctx, ride.ID, first.ID, bookingInput(2))
	if err != nil {
		t.Fatalf("request 1: %v", err)
	}
	b2, err := env.bookings.RequestBooking(ctx, ride.ID, second.ID, bookingInput(1))
	if err != nil {
		t.Fatalf("request 2: %v", err)
	}

	if _, err := env.bookings.ApproveBooking(ctx, b1.ID, driver.ID); err != nil {
		t.Fatalf("approve 1: %v", err)
	}
	if _, err := env.bookings.ApproveBooking(ctx, b2.ID, driver.ID); !utils.IsConflictError(err) {
		t.Fatalf("approving past capacity: got %v", err)
	}

	// The failed approval must not leak a reservation.
	fresh, _ := env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 0 {
		t.Fatalf("available seats = %d, want 0", fresh.AvailableSeats)
	}
	still, _ := env.bookRepo.GetByID(ctx, b2.ID)
	if still.Status != models.BookingStatusPending {
		t.Fatalf("rejected booking status = %s, want pending", still.Status)
	}
}

func TestDeclineBookingRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	ctx := context.Background()

	booking, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(1))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := env.bookings.DeclineBooking(ctx, booking.ID, driver.ID, ""); !utils.IsValidationError(err) {
		t.Fatalf("empty reason: got %v", err)
	}

	declined, err := env.bookings.DeclineBooking(ctx, booking.ID, driver.ID, "route changed")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != models.BookingStatusDeclined {
		t.Fatalf("status = %s, want declined", declined.Status)
	}
	if declined.DeclineReason != "route changed" {
		t.Fatalf("decline reason = %q", declined.DeclineReason)
	}

	// Declining never touches seat inventory.
	fresh, _ := env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 4 {
		t.Fatalf("available seats = %d, want 4", fresh.AvailableSeats)
	}
	if got := env.notificationCount(t, passenger.ID, models.NotificationTypeBookingDeclined); got != 1 {
		t.Fatalf("decline notifications = %d, want 1", got)
	}

	// Repeat declines are the idempotent path.
	if _, err := env.bookings.DeclineBooking(ctx, booking.ID, driver.ID, "route changed"); err != nil {
		t.Fatalf("repeat decline: %v", err)
	}
}

func TestCancelBookingReleasesHeldSeats(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	ctx := context.Background()

	booking, err := env.bookings.RequestBooking(ctx, ride.ID, passenger.ID, bookingInput(2))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.bookings.ApproveBooking(ctx, booking.ID, driver.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	stranger := env.seedUser(t, models.UserRolePassenger)
	if _, err := env.bookings.CancelBooking(ctx, booking.ID, stranger.ID, models.UserRolePassenger, "plans changed"); !utils.IsPermissionError(err) {
		t.Fatalf("stranger cancel: got %v", err)
	}

	cancelled, err := env.bookings.CancelBooking(ctx, booking.ID, passenger.ID, models.UserRolePassenger, "plans changed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.BookingStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	fresh, _ := env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 4 {
		t.Fatalf("available seats = %d, want 4 after release", fresh.AvailableSeats)
	}
	if got := env.notificationCount(t, driver.ID, models.NotificationTypeBookingCancelled); got != 1 {
		t.Fatalf("driver cancellation notifications = %d, want 1", got)
	}

	// Cancelling twice changes nothing.
	if _, err := env.bookings.CancelBooking(ctx, booking.ID, passenger.ID, models.UserRolePassenger, "plans changed"); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	fresh, _ = env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 4 {
		t.Fatalf("seats after repeat cancel = %d, want 4", fresh.AvailableSeats)
	}
}

func TestCancelBookingWhileAboard(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	admin := env.seedUser(t, models.UserRoleAdmin)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	booking := env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusActive, 1)
	env.rideRepo.rides[ride.ID].AvailableSeats = 3
	ctx := context.Background()

	// The passenger cannot bail out mid-ride on their own.
	_, err := env.bookings.CancelBooking(ctx, booking.ID, passenger.ID, models.UserRolePassenger, "changed my mind")
	if !utils.IsConflictError(err) {
		t.Fatalf("passenger cancelling while aboard: got %v", err)
	}

	// An admin can pull an aboard booking; its seats go back to the ride.
	cancelled, err := env.bookings.CancelBooking(ctx, booking.ID, admin.ID, models.UserRoleAdmin, "support intervention")
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled.Status != models.BookingStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledBy != string(models.UserRoleAdmin) {
		t.Fatalf("cancelled_by = %q", cancelled.CancelledBy)
	}
	fresh, _ := env.rideRepo.GetByID(ctx, ride.ID)
	if fresh.AvailableSeats != 4 {
		t.Fatalf("available seats = %d, want 4 after release", fresh.AvailableSeats)
	}
}

func TestAdminOverrideBookingAudited(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	admin := env.seedUser(t, models.UserRoleAdmin)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	booking := env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusConfirmed, 2)
	ctx := context.Background()

	if _, err := env.bookings.AdminOverrideBooking(ctx, booking.ID, admin.ID, "", map[string]interface{}{"seats_requested": 1}); !utils.IsValidationError(err) {
		t.Fatalf("override without reason: got %v", err)
	}
	if _, err := env.bookings.AdminOverrideBooking(ctx, booking.ID, admin.ID, "support ticket 4821", nil); !utils.IsValidationError(err) {
		t.Fatalf("override without updates: got %v", err)
	}

	after, err := env.bookings.AdminOverrideBooking(ctx, booking.ID, admin.ID, "support ticket 4821", map[string]interface{}{"seats_requested": 1})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if after.SeatsRequested != 1 {
		t.Fatalf("seats after override = %d, want 1", after.SeatsRequested)
	}

	entries, _, err := env.auditRepo.GetByResource(ctx, "booking", booking.ID.Hex(), nil)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries = %d (%v), want 1", len(entries), err)
	}
	entry := entries[0]
	if entry.Action != models.AuditActionOverride || entry.ActorID != admin.ID {
		t.Fatalf("audit entry mismatch: %+v", entry)
	}
	if entry.OldValues["seats_requested"] != 2 {
		t.Fatalf("old seats = %v, want 2", entry.OldValues["seats_requested"])
	}
	if entry.NewValues["seats_requested"] != 1 {
		t.Fatalf("new seats = %v, want 1", entry.NewValues["seats_requested"])
	}

	if got := env.notificationCount(t, passenger.ID, models.NotificationTypeSystem); got != 1 {
		t.Fatalf("override notifications = %d, want 1", got)
	}
}
