package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/models"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"
)

func TestUpdateLocationGuards(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	stranger := env.seedUser(t, models.UserRoleDriver)
	update := &LocationUpdate{Latitude: 37.79, Longitude: -122.40}
	ctx := context.Background()

	scheduled := env.seedRide(t, driver.ID, models.RideStatusScheduled, 4)
	if _, err := env.tracking.UpdateLocation(ctx, scheduled.ID, driver.ID, update); !errors.Is(err, utils.ErrRideNotActive) {
		t.Fatalf("scheduled ride: got %v", err)
	}

	active := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	if _, err := env.tracking.UpdateLocation(ctx, active.ID, stranger.ID, update); !utils.IsPermissionError(err) {
		t.Fatalf("wrong driver: got %v", err)
	}
}

func TestUpdateLocationRecordsAndServesLatest(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	ctx := context.Background()

	if _, err := env.tracking.GetLatest(ctx, ride.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("latest before any update: got %v", err)
	}

	updates := []LocationUpdate{
		{Latitude: 37.79, Longitude: -122.40, Speed: 35, Heading: 90},
		{Latitude: 37.80, Longitude: -122.39, Speed: 40, Heading: 92},
	}
	for i := range updates {
		if _, err := env.tracking.UpdateLocation(ctx, ride.ID, driver.ID, &updates[i]); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	latest, err := env.tracking.GetLatest(ctx, ride.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Latitude != 37.80 || latest.Heading != 92 {
		t.Fatalf("latest = %+v, want the second update", latest)
	}

	timeline, err := env.tracking.GetTimeline(ctx, ride.ID, 10)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("timeline length = %d, want 2", len(timeline))
	}
}

func TestSamplerBackfillsThrottledUpdates(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	ctx := context.Background()

	// A zero-rate limiter rejects every immediate write, leaving the
	// sampler as the only durable path.
	throttled := NewTrackingService(env.locRepo, env.rideRepo, env.realtime, &config.TrackingConfig{
		SampleInterval: 20 * time.Millisecond,
		RatePerSecond:  0,
		RateBurst:      0,
		TimelineCap:    50,
	}, logger.Default())
	defer throttled.Shutdown()

	throttled.StartSampler(ride, &models.TrackingSession{SessionID: "session-test", RideID: ride.ID})

	sample, err := throttled.UpdateLocation(ctx, ride.ID, driver.ID, &LocationUpdate{Latitude: 37.81, Longitude: -122.38})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// In-memory latest is immediate even though nothing was persisted yet.
	latest, err := throttled.GetLatest(ctx, ride.ID)
	if err != nil || latest.ID != sample.ID {
		t.Fatalf("in-memory latest = %+v (%v)", latest, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if persisted, err := env.locRepo.GetLatest(ctx, ride.ID); err == nil && persisted.ID == sample.ID {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sampler never persisted the throttled update")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopSamplerIdempotent(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)

	env.tracking.StartSampler(ride, &models.TrackingSession{SessionID: "session-test", RideID: ride.ID})
	// Restarting a running sampler spawns nothing new.
	env.tracking.StartSampler(ride, &models.TrackingSession{SessionID: "session-test", RideID: ride.ID})

	env.tracking.StopSampler(ride.ID)
	env.tracking.StopSampler(ride.ID)
}

func TestDeleteForRide(t *testing.T) {
	env := newTestEnv(t)
	driver := env.seedUser(t, models.UserRoleDriver)
	ride := env.seedRide(t, driver.ID, models.RideStatusInProgress, 4)
	ctx := context.Background()

	if _, err := env.tracking.UpdateLocation(ctx, ride.ID, driver.ID, &LocationUpdate{Latitude: 37.79, Longitude: -122.40}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := env.tracking.DeleteForRide(ctx, ride.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.locRepo.GetLatest(ctx, ride.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("latest after purge: got %v", err)
	}
	timeline, err := env.locRepo.GetTimeline(ctx, ride.ID, 10)
	if err != nil {
		t.Fatalf("timeline after purge: %v", err)
	}
	if len(timeline) != 0 {
		t.Fatalf("timeline after purge = %d samples", len(timeline))
	}
}
