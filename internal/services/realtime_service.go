package services

import (
	"context"
	"sync"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/observability"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"
	"ridepool/pkg/websocket"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "insert"
	ChangeOpUpdate ChangeOp = "update"
	ChangeOpDelete ChangeOp = "delete"
)

// ChangeEvent is one authoritative row-level change. Insert payloads
// carry only the fields the producer had on hand; consumers hydrate
// before rendering. Delete events are handled locally by id.
type ChangeEvent struct {
	Op          ChangeOp               `json:"op"`
	Collection  string                 `json:"collection"`
	DocumentID  string                 `json:"document_id"`
	RideID      primitive.ObjectID     `json:"ride_id,omitempty"`
	RecipientID primitive.ObjectID     `json:"recipient_id,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// SubscriptionPredicate scopes a subscription to one ride or one
// recipient. Exactly one side is normally set.
type SubscriptionPredicate struct {
	RideID      *primitive.ObjectID
	RecipientID *primitive.ObjectID
}

func (p SubscriptionPredicate) Matches(ev ChangeEvent) bool {
	if p.RideID != nil && (ev.RideID.IsZero() || ev.RideID != *p.RideID) {
		return false
	}
	if p.RecipientID != nil && (ev.RecipientID.IsZero() || ev.RecipientID != *p.RecipientID) {
		return false
	}
	return p.RideID != nil || p.RecipientID != nil
}

// Subscription is a live conduit of change events. It must be released
// with Unsubscribe when no longer needed; there is no implicit lifetime.
// Events may be dropped under backpressure or lost across a disconnect;
// Resync is the recovery path, never assumed gap-free delivery.
type Subscription struct {
	ID        string
	C         <-chan ChangeEvent
	predicate SubscriptionPredicate
	ch        chan ChangeEvent
	released  bool
}

// ResyncSnapshot is a bounded authoritative view used after a
// disconnect instead of replaying missed events.
type ResyncSnapshot struct {
	Ride          *models.Ride           `json:"ride,omitempty"`
	Bookings      []*models.Booking      `json:"bookings,omitempty"`
	Latest        *models.LocationSample `json:"latest_location,omitempty"`
	Notifications []*models.Notification `json:"notifications,omitempty"`
	UnreadCount   int64                  `json:"unread_count"`
	TakenAt       time.Time              `json:"taken_at"`
}

type RealtimeService interface {
	Subscribe(predicate SubscriptionPredicate) *Subscription
	Unsubscribe(sub *Subscription)
	Publish(ctx context.Context, ev ChangeEvent)
	Resync(ctx context.Context, predicate SubscriptionPredicate, limit int) (*ResyncSnapshot, error)
	Hydrate(ctx context.Context, ev ChangeEvent) (interface{}, error)
}

type realtimeService struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	hub      *websocket.Hub
	cache    CacheService
	rideRepo interfaces.RideRepository
	bookRepo interfaces.BookingRepository
	locRepo  interfaces.LocationRepository
	noteRepo interfaces.NotificationRepository
	logger   *logger.Logger
}

const changeEventChannel = "ridepool:changes"

func NewRealtimeService(
	hub *websocket.Hub,
	cacheService CacheService,
	rideRepo interfaces.RideRepository,
	bookRepo interfaces.BookingRepository,
	locRepo interfaces.LocationRepository,
	noteRepo interfaces.NotificationRepository,
	log *logger.Logger,
) RealtimeService {
	return &realtimeService{
		subs:     make(map[*Subscription]struct{}),
		hub:      hub,
		cache:    cacheService,
		rideRepo: rideRepo,
		bookRepo: bookRepo,
		locRepo:  locRepo,
		noteRepo: noteRepo,
		logger:   log.WithField("component", "realtime"),
	}
}

func (s *realtimeService) Subscribe(predicate SubscriptionPredicate) *Subscription {
	ch := make(chan ChangeEvent, 32)
	sub := &Subscription{
		ID:        uuid.NewString(),
		C:         ch,
		ch:        ch,
		predicate: predicate,
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	observability.SubscriptionsActive.Inc()
	return sub
}

func (s *realtimeService) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.released {
		return
	}
	sub.released = true
	delete(s.subs, sub)
	close(sub.ch)
	observability.SubscriptionsActive.Dec()
}

// Publish fans the event out to matching in-process subscriptions, the
// websocket rooms, and the redis channel for other nodes. A slow
// subscriber loses the event rather than blocking the producer; it will
// catch up via Resync.
func (s *realtimeService) Publish(ctx context.Context, ev ChangeEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.mu.RLock()
	for sub := range s.subs {
		if !sub.predicate.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			s.logger.WithField("subscription_id", sub.ID).Debug("subscriber buffer full, event dropped")
		}
	}
	s.mu.RUnlock()

	if s.hub != nil {
		msg := websocket.NewMessage("change_event", "", ev)
		if !ev.RideID.IsZero() {
			msg.RoomID = websocket.RideRoom(ev.RideID)
			s.hub.SendToRide(ev.RideID, msg)
		}
		if !ev.RecipientID.IsZero() {
			msg.RoomID = websocket.UserRoom(ev.RecipientID)
			s.hub.SendToUser(ev.RecipientID, msg)
		}
	}

	if s.cache != nil {
		if err := s.cache.Publish(ctx, changeEventChannel, ev); err != nil {
			s.logger.WithError(err).Debug("cross-node change publish failed")
		}
	}
}

func (s *realtimeService) Resync(ctx context.Context, predicate SubscriptionPredicate, limit int) (*ResyncSnapshot, error) {
	if limit <= 0 {
		limit = utils.ResyncDefaultLimit
	}
	if limit > utils.ResyncMaxLimit {
		limit = utils.ResyncMaxLimit
	}

	snapshot := &ResyncSnapshot{TakenAt: time.Now()}

	if predicate.RideID != nil {
		ride, err := s.rideRepo.GetByID(ctx, *predicate.RideID)
		if err != nil {
			return nil, err
		}
		snapshot.Ride = ride

		bookings, err := s.bookRepo.GetByRide(ctx, *predicate.RideID)
		if err != nil {
			return nil, err
		}
		snapshot.Bookings = bookings

		latest, err := s.locRepo.GetLatest(ctx, *predicate.RideID)
		if err != nil && err != utils.ErrNotFound {
			return nil, err
		}
		snapshot.Latest = latest
	}

	if predicate.RecipientID != nil {
		notifications, err := s.noteRepo.GetRecentByUser(ctx, *predicate.RecipientID, limit)
		if err != nil {
			return nil, err
		}
		snapshot.Notifications = notifications

		unread, err := s.noteRepo.CountUnread(ctx, *predicate.RecipientID)
		if err != nil {
			return nil, err
		}
		snapshot.UnreadCount = unread
	}

	return snapshot, nil
}

// Hydrate loads the full document behind an insert event whose payload
// may be missing joined display fields.
func (s *realtimeService) Hydrate(ctx context.Context, ev ChangeEvent) (interface{}, error) {
	id, err := primitive.ObjectIDFromHex(ev.DocumentID)
	if err != nil {
		return nil, utils.NewValidationError("document_id", "malformed id in change event")
	}

	switch ev.Collection {
	case "rides":
		return s.rideRepo.GetByID(ctx, id)
	case "bookings":
		return s.bookRepo.GetByID(ctx, id)
	case "notifications":
		return s.noteRepo.GetByID(ctx, id)
	case "locations":
		if ev.RideID.IsZero() {
			return nil, utils.ErrNotFound
		}
		return s.locRepo.GetLatest(ctx, ev.RideID)
	default:
		return nil, utils.ErrNotFound
	}
}
