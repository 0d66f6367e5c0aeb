package utils

import "time"

// Application Constants
const (
	AppName    = "RidePool"
	AppVersion = "1.0.0"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL  = 24 * time.Hour
	JWTRefreshTokenTTL = 7 * 24 * time.Hour

	// Ride constants
	MaxSeatsPerRide      = 8
	MaxSeatsPerBooking   = 4
	MaxReasonLength      = 255
	RideNumberPrefix     = "RP"
	TrackingSessionTTL   = 12 * time.Hour
	LocationSampleWindow = 500 // capped timeline entries per ride

	// Location sampler
	LocationUpdateInterval = 30 * time.Second
	LocationRatePerSecond  = 1.0 // per-ride ingestion cap
	LocationRateBurst      = 3

	// Transition retries (bounded wait, then RetryableError)
	TransitionMaxAttempts = 3
	TransitionRetryDelay  = 500 * time.Millisecond

	// Subscription channel
	ResyncDefaultLimit = 100
	ResyncMaxLimit     = 200

	// Cache TTLs
	RideCacheTTL        = 5 * time.Minute
	UnreadCountCacheTTL = 24 * time.Hour
	FanoutGuardTTL      = 48 * time.Hour
)

// Response status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Common error messages
const (
	ErrValidationFailed = "Validation failed"
	ErrInternalServer   = "An internal error occurred"
	ErrUnauthorized     = "Authentication required"
	ErrForbidden        = "You do not have permission to perform this action"
	ErrResourceNotFound = "Resource not found"
)

// Cache key prefixes
const (
	CacheKeyRide        = "ride:"
	CacheKeyUnreadCount = "notifications:unread:"
	CacheKeyFanoutGuard = "fanout:"
	CacheKeyDriverRide  = "driver:active_ride:"
)
