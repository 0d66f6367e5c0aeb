package services

import (
	"context"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/utils"
	"ridepool/pkg/cache"
	"ridepool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)
	Decrement(ctx context.Context, key string, delta int64) (int64, error)
	Publish(ctx context.Context, channel string, message interface{}) error
	Ping(ctx context.Context) error

	// Hot-row helpers
	CacheRide(ctx context.Context, ride *models.Ride) error
	GetCachedRide(ctx context.Context, rideID primitive.ObjectID) *models.Ride
	InvalidateRide(ctx context.Context, rideID primitive.ObjectID) error
}

type redisCacheService struct {
	cache  *cache.RedisCache
	logger *logger.Logger
}

func NewCacheService(redisCache *cache.RedisCache, log *logger.Logger) CacheService {
	return &redisCacheService{
		cache:  redisCache,
		logger: log.WithField("component", "cache"),
	}
}

func (s *redisCacheService) Get(ctx context.Context, key string, dest interface{}) error {
	return s.cache.Get(ctx, key, dest)
}

func (s *redisCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.cache.Set(ctx, key, value, expiration)
}

func (s *redisCacheService) Delete(ctx context.Context, keys ...string) error {
	return s.cache.Delete(ctx, keys...)
}

func (s *redisCacheService) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return s.cache.SetNX(ctx, key, value, expiration)
}

func (s *redisCacheService) Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	return s.cache.IncrBy(ctx, key, delta, expiration)
}

func (s *redisCacheService) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return s.cache.DecrBy(ctx, key, delta)
}

func (s *redisCacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	return s.cache.Publish(ctx, channel, message)
}

func (s *redisCacheService) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

func (s *redisCacheService) CacheRide(ctx context.Context, ride *models.Ride) error {
	return s.cache.Set(ctx, utils.CacheKeyRide+ride.ID.Hex(), ride, utils.RideCacheTTL)
}

// GetCachedRide returns nil on a miss; cached rides are hints only,
// never a basis for writes.
func (s *redisCacheService) GetCachedRide(ctx context.Context, rideID primitive.ObjectID) *models.Ride {
	var ride models.Ride
	if err := s.cache.Get(ctx, utils.CacheKeyRide+rideID.Hex(), &ride); err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.WithError(err).Debug("ride cache read failed")
		}
		return nil
	}
	return &ride
}

func (s *redisCacheService) InvalidateRide(ctx context.Context, rideID primitive.ObjectID) error {
	return s.cache.Delete(ctx, utils.CacheKeyRide+rideID.Hex())
}
