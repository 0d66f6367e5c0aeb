package services

import (
	"context"
	"sync"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/models"
	"ridepool/internal/observability"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/time/rate"
)

type LocationUpdate struct {
	Latitude  float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Speed     float64 `json:"speed" validate:"min=0"`
	Heading   float64 `json:"heading" validate:"min=0,max=360"`
}

type TrackingService interface {
	// UpdateLocation ingests one driver position. Accepted only while
	// the ride is in progress. Every accepted update reaches live
	// subscribers; durable writes are throttled by the per-ride limiter
	// with the sampler backfilling the timeline on its own clock.
	UpdateLocation(ctx context.Context, rideID, driverID primitive.ObjectID, update *LocationUpdate) (*models.LocationSample, error)

	GetLatest(ctx context.Context, rideID primitive.ObjectID) (*models.LocationSample, error)
	GetTimeline(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.LocationSample, error)

	// StartSampler begins the periodic persistence loop for a tracking
	// session. Starting an already-sampled ride restarts nothing.
	StartSampler(ride *models.Ride, session *models.TrackingSession)
	// StopSampler cancels the ride's sampler. Safe to call repeatedly.
	StopSampler(rideID primitive.ObjectID)

	DeleteForRide(ctx context.Context, rideID primitive.ObjectID) error
	Shutdown()
}

type rideTracker struct {
	limiter *rate.Limiter
	cancel  context.CancelFunc

	mu            sync.Mutex
	latest        *models.LocationSample
	lastPersisted time.Time
}

type trackingService struct {
	locRepo  interfaces.LocationRepository
	rideRepo interfaces.RideRepository
	realtime RealtimeService
	cfg      *config.TrackingConfig
	logger   *logger.Logger

	mu       sync.Mutex
	trackers map[primitive.ObjectID]*rideTracker
}

func NewTrackingService(
	locRepo interfaces.LocationRepository,
	rideRepo interfaces.RideRepository,
	realtime RealtimeService,
	cfg *config.TrackingConfig,
	log *logger.Logger,
) TrackingService {
	return &trackingService{
		locRepo:  locRepo,
		rideRepo: rideRepo,
		realtime: realtime,
		cfg:      cfg,
		logger:   log.WithField("component", "tracking"),
		trackers: make(map[primitive.ObjectID]*rideTracker),
	}
}

func (s *trackingService) UpdateLocation(ctx context.Context, rideID, driverID primitive.ObjectID, update *LocationUpdate) (*models.LocationSample, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, utils.NewPermissionError("only the ride's driver can report its location")
	}
	if ride.Status != models.RideStatusInProgress {
		return nil, utils.ErrRideNotActive
	}

	sample := &models.LocationSample{
		ID:         primitive.NewObjectID(),
		RideID:     rideID,
		Latitude:   update.Latitude,
		Longitude:  update.Longitude,
		Speed:      update.Speed,
		Heading:    update.Heading,
		RecordedAt: time.Now(),
	}

	tracker := s.trackerFor(rideID)
	tracker.mu.Lock()
	tracker.latest = sample
	persist := tracker.limiter.Allow()
	if persist {
		tracker.lastPersisted = sample.RecordedAt
	}
	tracker.mu.Unlock()

	if persist {
		if err := s.locRepo.Record(ctx, sample, s.cfg.TimelineCap); err != nil {
			observability.LocationSampleFailuresTotal.Inc()
			return nil, err
		}
	}
	observability.LocationSamplesTotal.Inc()

	s.realtime.Publish(ctx, ChangeEvent{
		Op:         ChangeOpUpdate,
		Collection: "locations",
		DocumentID: sample.ID.Hex(),
		RideID:     rideID,
		Fields: map[string]interface{}{
			"latitude":    sample.Latitude,
			"longitude":   sample.Longitude,
			"speed":       sample.Speed,
			"heading":     sample.Heading,
			"recorded_at": sample.RecordedAt,
		},
	})

	return sample, nil
}

func (s *trackingService) GetLatest(ctx context.Context, rideID primitive.ObjectID) (*models.LocationSample, error) {
	s.mu.Lock()
	tracker := s.trackers[rideID]
	s.mu.Unlock()

	if tracker != nil {
		tracker.mu.Lock()
		latest := tracker.latest
		tracker.mu.Unlock()
		if latest != nil {
			return latest, nil
		}
	}
	return s.locRepo.GetLatest(ctx, rideID)
}

func (s *trackingService) GetTimeline(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.LocationSample, error) {
	return s.locRepo.GetTimeline(ctx, rideID, limit)
}

func (s *trackingService) StartSampler(ride *models.Ride, session *models.TrackingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tracker, ok := s.trackers[ride.ID]; ok && tracker.cancel != nil {
		return
	}

	tracker := s.trackerLocked(ride.ID)
	ctx, cancel := context.WithCancel(context.Background())
	tracker.cancel = cancel

	s.logger.WithFields(map[string]interface{}{
		"ride_id":    ride.ID.Hex(),
		"session_id": session.SessionID,
	}).Info("location sampler started")

	go s.sampleLoop(ctx, ride.ID, session.SessionID, tracker)
}

// sampleLoop persists the freshest unpersisted sample once per interval.
// A failed tick is logged and counted; the next tick carries whatever is
// newest then, so there is nothing to retry in between.
func (s *trackingService) sampleLoop(ctx context.Context, rideID primitive.ObjectID, sessionID string, tracker *rideTracker) {
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracker.mu.Lock()
			sample := tracker.latest
			stale := sample == nil || !sample.RecordedAt.After(tracker.lastPersisted)
			tracker.mu.Unlock()
			if stale {
				continue
			}

			persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.locRepo.Record(persistCtx, sample, s.cfg.TimelineCap)
			cancel()
			if err != nil {
				observability.LocationSampleFailuresTotal.Inc()
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"ride_id":    rideID.Hex(),
					"session_id": sessionID,
				}).Warn("location sample persist failed")
				continue
			}

			tracker.mu.Lock()
			tracker.lastPersisted = sample.RecordedAt
			tracker.mu.Unlock()
		}
	}
}

func (s *trackingService) StopSampler(rideID primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracker, ok := s.trackers[rideID]
	if !ok {
		return
	}
	if tracker.cancel != nil {
		tracker.cancel()
	}
	delete(s.trackers, rideID)
}

func (s *trackingService) DeleteForRide(ctx context.Context, rideID primitive.ObjectID) error {
	s.StopSampler(rideID)
	return s.locRepo.DeleteForRide(ctx, rideID)
}

func (s *trackingService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rideID, tracker := range s.trackers {
		if tracker.cancel != nil {
			tracker.cancel()
		}
		delete(s.trackers, rideID)
	}
}

func (s *trackingService) trackerFor(rideID primitive.ObjectID) *rideTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackerLocked(rideID)
}

func (s *trackingService) trackerLocked(rideID primitive.ObjectID) *rideTracker {
	tracker, ok := s.trackers[rideID]
	if !ok {
		tracker = &rideTracker{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst),
		}
		s.trackers[rideID] = tracker
	}
	return tracker
}
