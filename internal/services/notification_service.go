package services

import (
	"context"
	"fmt"

	"ridepool/internal/models"
	"ridepool/internal/observability"
	"ridepool/internal/repositories/interfaces"
	"ridepool/internal/stream"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"
	"ridepool/pkg/push"
	"ridepool/pkg/sms"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationService interface {
	// Fanout materializes one notification per recipient of the event.
	// Retrying the same event is safe: each (event, recipient) pair is
	// delivered at most once.
	Fanout(ctx context.Context, event *models.LifecycleEvent) error

	GetNotifications(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Notification, int64, error)
	MarkRead(ctx context.Context, notificationID, userID primitive.ObjectID) error
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type notificationService struct {
	noteRepo interfaces.NotificationRepository
	userRepo interfaces.UserRepository
	cache    CacheService
	realtime RealtimeService
	push     push.Provider
	sms      sms.Provider
	journal  *stream.Producer
	logger   *logger.Logger
}

func NewNotificationService(
	noteRepo interfaces.NotificationRepository,
	userRepo interfaces.UserRepository,
	cacheService CacheService,
	realtime RealtimeService,
	pushProvider push.Provider,
	smsProvider sms.Provider,
	journal *stream.Producer,
	log *logger.Logger,
) NotificationService {
	return &notificationService{
		noteRepo: noteRepo,
		userRepo: userRepo,
		cache:    cacheService,
		realtime: realtime,
		push:     pushProvider,
		sms:      smsProvider,
		journal:  journal,
		logger:   log.WithField("component", "notifications"),
	}
}

func (s *notificationService) Fanout(ctx context.Context, event *models.LifecycleEvent) error {
	if event == nil || event.Payload == nil {
		return utils.NewValidationError("event", "lifecycle event is incomplete")
	}
	if event.EventID == "" {
		return utils.NewValidationError("event_id", "lifecycle event needs a stable id")
	}

	users, err := s.userRepo.GetByIDs(ctx, event.Recipients)
	if err != nil {
		return fmt.Errorf("failed to load fanout recipients: %w", err)
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	s.journal.JournalEvent(ctx, event)

	var firstErr error
	for _, recipientID := range event.Recipients {
		if err := s.deliverOne(ctx, event, recipientID, byID[recipientID]); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"event_id": event.EventID,
				"user_id":  recipientID.Hex(),
			}).Error("fanout delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// deliverOne is the per-recipient leg of fanout. The redis guard is a
// fast path only; the unique (event_id, user_id) index on the store is
// what actually enforces at-most-once.
func (s *notificationService) deliverOne(ctx context.Context, event *models.LifecycleEvent, recipientID primitive.ObjectID, user *models.User) error {
	guardKey := utils.CacheKeyFanoutGuard + event.EventID + ":" + recipientID.Hex()
	acquired, err := s.cache.SetNX(ctx, guardKey, 1, utils.FanoutGuardTTL)
	if err != nil {
		s.logger.WithError(err).Debug("fanout guard unavailable, falling through to store")
	} else if !acquired {
		observability.NotificationsDedupedTotal.Inc()
		return nil
	}

	notification, err := models.NewNotification(recipientID, event.EventID, event.Payload)
	if err != nil {
		return err
	}

	created, err := s.noteRepo.Insert(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	if !created {
		observability.NotificationsDedupedTotal.Inc()
		return nil
	}
	observability.NotificationsFanoutTotal.Inc()

	if _, err := s.cache.Increment(ctx, utils.CacheKeyUnreadCount+recipientID.Hex(), 1, utils.UnreadCountCacheTTL); err != nil {
		// Counter drifts only until the next UnreadCount requery.
		s.logger.WithError(err).Debug("unread counter increment failed")
	}

	s.realtime.Publish(ctx, ChangeEvent{
		Op:          ChangeOpInsert,
		Collection:  "notifications",
		DocumentID:  notification.ID.Hex(),
		RideID:      event.RideID,
		RecipientID: recipientID,
		Fields: map[string]interface{}{
			"type":    notification.Type,
			"title":   notification.Title,
			"message": notification.Message,
		},
	})

	if user != nil {
		s.sendPush(ctx, user, notification)
		if notification.Type == models.NotificationTypeRideCancelled {
			s.sendSMS(ctx, user, notification)
		}
	}
	return nil
}

func (s *notificationService) sendPush(ctx context.Context, user *models.User, notification *models.Notification) {
	if s.push == nil || len(user.DeviceTokens) == 0 {
		return
	}

	reqs := make([]*push.PushRequest, 0, len(user.DeviceTokens))
	for _, token := range user.DeviceTokens {
		reqs = append(reqs, &push.PushRequest{
			Token: token,
			Title: notification.Title,
			Body:  notification.Message,
			Data: map[string]string{
				"type":            string(notification.Type),
				"notification_id": notification.ID.Hex(),
			},
			Sound: "default",
		})
	}

	if _, err := s.push.SendBatch(ctx, reqs); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID.Hex()).Warn("push delivery failed")
	}
}

func (s *notificationService) sendSMS(ctx context.Context, user *models.User, notification *models.Notification) {
	if s.sms == nil || user.Phone == "" {
		return
	}
	req := &sms.SMSRequest{
		To:      user.Phone,
		Message: notification.Title + ": " + notification.Message,
	}
	if _, err := s.sms.SendSMS(ctx, req); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID.Hex()).Warn("sms delivery failed")
	}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID primitive.ObjectID, params *utils.PaginationParams) ([]*models.Notification, int64, error) {
	return s.noteRepo.GetByUser(ctx, userID, params)
}

func (s *notificationService) MarkRead(ctx context.Context, notificationID, userID primitive.ObjectID) error {
	updated, err := s.noteRepo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !updated {
		// Already read, or not this user's notification. Either way the
		// counter must not move twice.
		return nil
	}

	if _, err := s.cache.Decrement(ctx, utils.CacheKeyUnreadCount+userID.Hex(), 1); err != nil {
		s.logger.WithError(err).Debug("unread counter decrement failed")
	}

	s.realtime.Publish(ctx, ChangeEvent{
		Op:          ChangeOpUpdate,
		Collection:  "notifications",
		DocumentID:  notificationID.Hex(),
		RecipientID: userID,
		Fields:      map[string]interface{}{"read": true},
	})
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := s.noteRepo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.cache.Set(ctx, utils.CacheKeyUnreadCount+userID.Hex(), 0, utils.UnreadCountCacheTTL); err != nil {
		s.logger.WithError(err).Debug("unread counter reset failed")
	}

	if count > 0 {
		s.realtime.Publish(ctx, ChangeEvent{
			Op:          ChangeOpUpdate,
			Collection:  "notifications",
			DocumentID:  userID.Hex(),
			RecipientID: userID,
			Fields:      map[string]interface{}{"read_all": true},
		})
	}
	return count, nil
}

// UnreadCount serves the cached counter when present and falls back to
// a full requery, repairing the cache on the way out. The requery is
// the authority; the counter is a hint.
func (s *notificationService) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	key := utils.CacheKeyUnreadCount + userID.Hex()

	var cached int64
	if err := s.cache.Get(ctx, key, &cached); err == nil && cached >= 0 {
		return cached, nil
	}

	count, err := s.noteRepo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, key, count, utils.UnreadCountCacheTTL); err != nil {
		s.logger.WithError(err).Debug("unread counter backfill failed")
	}
	return count, nil
}
