package services

import (
	"context"
	"testing"

	"ridepool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func drain(sub *Subscription) []ChangeEvent {
	var events []ChangeEvent
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestPublishMatchesPredicates(t *testing.T) {
	env := newTestEnv(t)
	rideID := primitive.NewObjectID()
	otherRide := primitive.NewObjectID()
	userID := primitive.NewObjectID()

	bySub := env.realtime.Subscribe(SubscriptionPredicate{RideID: &rideID})
	byUser := env.realtime.Subscribe(SubscriptionPredicate{RecipientID: &userID})
	defer env.realtime.Unsubscribe(bySub)
	defer env.realtime.Unsubscribe(byUser)

	ctx := context.Background()
	env.realtime.Publish(ctx, ChangeEvent{Op: ChangeOpUpdate, Collection: "rides", DocumentID: rideID.Hex(), RideID: rideID})
	env.realtime.Publish(ctx, ChangeEvent{Op: ChangeOpUpdate, Collection: "rides", DocumentID: otherRide.Hex(), RideID: otherRide})
	env.realtime.Publish(ctx, ChangeEvent{Op: ChangeOpInsert, Collection: "notifications", DocumentID: primitive.NewObjectID().Hex(), RecipientID: userID})

	rideEvents := drain(bySub)
	if len(rideEvents) != 1 {
		t.Fatalf("ride subscriber got %d events, want 1", len(rideEvents))
	}
	if rideEvents[0].RideID != rideID {
		t.Fatalf("ride subscriber got event for %s", rideEvents[0].RideID.Hex())
	}
	if rideEvents[0].Timestamp.IsZero() {
		t.Fatal("publish should stamp the event")
	}

	userEvents := drain(byUser)
	if len(userEvents) != 1 || userEvents[0].Collection != "notifications" {
		t.Fatalf("user subscriber got %+v", userEvents)
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	env := newTestEnv(t)
	rideID := primitive.NewObjectID()
	sub := env.realtime.Subscribe(SubscriptionPredicate{RideID: &rideID})
	defer env.realtime.Unsubscribe(sub)

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		env.realtime.Publish(ctx, ChangeEvent{Op: ChangeOpUpdate, Collection: "locations", DocumentID: rideID.Hex(), RideID: rideID})
	}

	// Overflow is dropped, not blocking: the buffer holds what it holds.
	events := drain(sub)
	if len(events) == 0 || len(events) > 32 {
		t.Fatalf("drained %d events, want between 1 and the buffer size", len(events))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	env := newTestEnv(t)
	rideID := primitive.NewObjectID()
	sub := env.realtime.Subscribe(SubscriptionPredicate{RideID: &rideID})

	env.realtime.Unsubscribe(sub)
	// A second release must not panic on the closed channel.
	env.realtime.Unsubscribe(sub)
	env.realtime.Unsubscribe(nil)

	if _, ok := <-sub.C; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// Publishing after release goes nowhere.
	env.realtime.Publish(context.Background(), ChangeEvent{Op: ChangeOpUpdate, Collection: "rides", DocumentID: rideID.Hex(), RideID: rideID})
}

func TestResyncRideSnapshot(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusActive, 1)
	ctx := context.Background()

	if _, err := env.tracking.UpdateLocation(ctx, ride.ID, driver.ID, &LocationUpdate{Latitude: 37.79, Longitude: -122.40}); err != nil {
		t.Fatalf("location update: %v", err)
	}

	snapshot, err := env.realtime.Resync(ctx, SubscriptionPredicate{RideID: &ride.ID}, 0)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if snapshot.Ride == nil || snapshot.Ride.ID != ride.ID {
		t.Fatalf("snapshot ride = %+v", snapshot.Ride)
	}
	if len(snapshot.Bookings) != 1 {
		t.Fatalf("snapshot bookings = %d, want 1", len(snapshot.Bookings))
	}
	if snapshot.Latest == nil || snapshot.Latest.Latitude != 37.79 {
		t.Fatalf("snapshot latest = %+v", snapshot.Latest)
	}
	if snapshot.TakenAt.IsZero() {
		t.Fatal("snapshot must carry its capture time")
	}
}

func TestResyncRecipientSnapshot(t *testing.T) {
	env := newTestEnv(t)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.notifier.Fanout(ctx, startedEvent(primitive.NewObjectID(), passenger.ID)); err != nil {
			t.Fatalf("fanout %d: %v", i, err)
		}
	}

	snapshot, err := env.realtime.Resync(ctx, SubscriptionPredicate{RecipientID: &passenger.ID}, 0)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(snapshot.Notifications) != 2 {
		t.Fatalf("snapshot notifications = %d, want 2", len(snapshot.Notifications))
	}
	if snapshot.UnreadCount != 2 {
		t.Fatalf("snapshot unread = %d, want 2", snapshot.UnreadCount)
	}
	if snapshot.Ride != nil {
		t.Fatal("recipient snapshot should not include a ride")
	}
}

func TestHydrate(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	passenger := env.seedUser(t, models.UserRolePassenger)
	ride := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	booking := env.seedBooking(t, ride.ID, passenger.ID, models.BookingStatusPending, 1)
	ctx := context.Background()

	doc, err := env.realtime.Hydrate(ctx, ChangeEvent{Collection: "bookings", DocumentID: booking.ID.Hex()})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	hydrated, ok := doc.(*models.Booking)
	if !ok || hydrated.ID != booking.ID {
		t.Fatalf("hydrated %T %+v", doc, doc)
	}

	if _, err := env.realtime.Hydrate(ctx, ChangeEvent{Collection: "bookings", DocumentID: "not-an-id"}); err == nil {
		t.Fatal("malformed id should be rejected")
	}
	if _, err := env.realtime.Hydrate(ctx, ChangeEvent{Collection: "mystery", DocumentID: booking.ID.Hex()}); err == nil {
		t.Fatal("unknown collection should not hydrate")
	}
}
