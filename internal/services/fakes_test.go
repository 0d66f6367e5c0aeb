package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ridepool/internal/models"
	"ridepool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository doubles. They mirror the conditional-write
// semantics of the mongo implementations: status-guarded transitions
// return false instead of erroring when the guard misses.

type fakeRideRepo struct {
	mu    sync.Mutex
	rides map[primitive.ObjectID]*models.Ride
}

func newFakeRideRepo() *fakeRideRepo {
	return &fakeRideRepo{rides: make(map[primitive.ObjectID]*models.Ride)}
}

func (r *fakeRideRepo) Create(_ context.Context, ride *models.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ride.ID.IsZero() {
		ride.ID = primitive.NewObjectID()
	}
	clone := *ride
	r.rides[ride.ID] = &clone
	return nil
}

func (r *fakeRideRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	clone := *ride
	return &clone, nil
}

func (r *fakeRideRepo) Update(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeRideRepo) GetByDriver(_ context.Context, driverID primitive.ObjectID, _ *utils.PaginationParams) ([]*models.Ride, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Ride
	for _, ride := range r.rides {
		if ride.DriverID == driverID {
			clone := *ride
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRideRepo) GetByStatus(_ context.Context, status models.RideStatus, _ *utils.PaginationParams) ([]*models.Ride, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Ride
	for _, ride := range r.rides {
		if ride.Status == status {
			clone := *ride
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRideRepo) GetActiveByDriver(_ context.Context, driverID primitive.ObjectID) (*models.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ride := range r.rides {
		if ride.DriverID == driverID && ride.Status == models.RideStatusInProgress {
			clone := *ride
			return &clone, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeRideRepo) StartRide(_ context.Context, id primitive.ObjectID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok || ride.Status != models.RideStatusScheduled {
		return false, nil
	}
	now := time.Now()
	ride.Status = models.RideStatusInProgress
	ride.TrackingSessionID = sessionID
	ride.StartedAt = &now
	return true, nil
}

func (r *fakeRideRepo) CompleteRide(_ context.Context, id primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok || ride.Status != models.RideStatusInProgress {
		return false, nil
	}
	now := time.Now()
	ride.Status = models.RideStatusCompleted
	ride.CompletedAt = &now
	return true, nil
}

func (r *fakeRideRepo) CancelRide(_ context.Context, id primitive.ObjectID, reason, cancelledBy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok {
		return false, nil
	}
	if ride.Status != models.RideStatusScheduled && ride.Status != models.RideStatusInProgress {
		return false, nil
	}
	now := time.Now()
	ride.Status = models.RideStatusCancelled
	ride.CancelledAt = &now
	ride.CancellationReason = reason
	ride.CancelledBy = cancelledBy
	return true, nil
}

func (r *fakeRideRepo) ReserveSeats(_ context.Context, id primitive.ObjectID, seats int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok || ride.AvailableSeats < seats {
		return false, nil
	}
	ride.AvailableSeats -= seats
	return true, nil
}

func (r *fakeRideRepo) ReleaseSeats(_ context.Context, id primitive.ObjectID, seats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ride, ok := r.rides[id]
	if !ok {
		return utils.ErrNotFound
	}
	ride.AvailableSeats += seats
	if ride.AvailableSeats > ride.TotalSeats {
		ride.AvailableSeats = ride.TotalSeats
	}
	return nil
}

func (r *fakeRideRepo) Purge(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rides, id)
	return nil
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[primitive.ObjectID]*models.Booking
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[primitive.ObjectID]*models.Booking)}
}

func (r *fakeBookingRepo) Create(_ context.Context, booking *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.RideID == booking.RideID && b.PassengerID == booking.PassengerID {
			return utils.NewConflictError("booking", "passenger already has a booking on this ride")
		}
	}
	if booking.ID.IsZero() {
		booking.ID = primitive.NewObjectID()
	}
	clone := *booking
	r.bookings[booking.ID] = &clone
	return nil
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	clone := *booking
	return &clone, nil
}

func (r *fakeBookingRepo) GetByRide(_ context.Context, rideID primitive.ObjectID) ([]*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Booking
	for _, b := range r.bookings {
		if b.RideID == rideID {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) GetByRideAndStatus(_ context.Context, rideID primitive.ObjectID, statuses ...models.BookingStatus) ([]*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Booking
	for _, b := range r.bookings {
		if b.RideID != rideID {
			continue
		}
		for _, status := range statuses {
			if b.Status == status {
				clone := *b
				out = append(out, &clone)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) GetByRideAndPassenger(_ context.Context, rideID, passengerID primitive.ObjectID) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.RideID == rideID && b.PassengerID == passengerID {
			clone := *b
			return &clone, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeBookingRepo) GetByPassenger(_ context.Context, passengerID primitive.ObjectID, _ *utils.PaginationParams) ([]*models.Booking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Booking
	for _, b := range r.bookings {
		if b.PassengerID == passengerID {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeBookingRepo) Transition(_ context.Context, id primitive.ObjectID, from []models.BookingStatus, to models.BookingStatus, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if booking.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	booking.Status = to
	applyBookingUpdates(booking, updates)
	booking.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeBookingRepo) ForceUpdate(_ context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return utils.ErrNotFound
	}
	if status, ok := updates["status"].(string); ok {
		booking.Status = models.BookingStatus(status)
	}
	applyBookingUpdates(booking, updates)
	booking.UpdatedAt = time.Now()
	return nil
}

func applyBookingUpdates(booking *models.Booking, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "confirmed_at":
			if t, ok := value.(time.Time); ok {
				booking.ConfirmedAt = &t
			}
		case "picked_up_at":
			if t, ok := value.(time.Time); ok {
				booking.PickedUpAt = &t
			}
		case "dropped_off_at":
			if t, ok := value.(time.Time); ok {
				booking.DroppedOffAt = &t
			}
		case "seats_requested":
			if n, ok := value.(int); ok {
				booking.SeatsRequested = n
			}
		case "pickup_order":
			if n, ok := value.(int); ok {
				order := n
				booking.PickupOrder = &order
			}
		case "decline_reason":
			if s, ok := value.(string); ok {
				booking.DeclineReason = s
			}
		case "cancellation_reason":
			if s, ok := value.(string); ok {
				booking.CancellationReason = s
			}
		case "cancelled_by":
			if s, ok := value.(string); ok {
				booking.CancelledBy = s
			}
		}
	}
}

func (r *fakeBookingRepo) AssignPickupOrder(_ context.Context, id primitive.ObjectID, order int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.PickupOrder != nil {
		return false, nil
	}
	booking.PickupOrder = &order
	return true, nil
}

func (r *fakeBookingRepo) SeatsHeld(_ context.Context, rideID primitive.ObjectID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, b := range r.bookings {
		if b.RideID == rideID && b.HoldsSeats() {
			total += b.SeatsRequested
		}
	}
	return total, nil
}

type fakeLocationRepo struct {
	mu       sync.Mutex
	latest   map[primitive.ObjectID]*models.LocationSample
	timeline map[primitive.ObjectID][]*models.LocationSample
}

func newFakeLocationRepo() *fakeLocationRepo {
	return &fakeLocationRepo{
		latest:   make(map[primitive.ObjectID]*models.LocationSample),
		timeline: make(map[primitive.ObjectID][]*models.LocationSample),
	}
}

func (r *fakeLocationRepo) Record(_ context.Context, sample *models.LocationSample, timelineCap int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *sample
	r.latest[sample.RideID] = &clone
	entries := append(r.timeline[sample.RideID], &clone)
	if len(entries) > timelineCap {
		entries = entries[len(entries)-timelineCap:]
	}
	r.timeline[sample.RideID] = entries
	return nil
}

func (r *fakeLocationRepo) GetLatest(_ context.Context, rideID primitive.ObjectID) (*models.LocationSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sample, ok := r.latest[rideID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	clone := *sample
	return &clone, nil
}

func (r *fakeLocationRepo) GetTimeline(_ context.Context, rideID primitive.ObjectID, limit int) ([]*models.LocationSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.timeline[rideID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*models.LocationSample, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *fakeLocationRepo) DeleteForRide(_ context.Context, rideID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.latest, rideID)
	delete(r.timeline, rideID)
	return nil
}

type notificationKey struct {
	eventID string
	userID  primitive.ObjectID
}

type fakeNotificationRepo struct {
	mu     sync.Mutex
	rows   map[primitive.ObjectID]*models.Notification
	unique map[notificationKey]bool
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		rows:   make(map[primitive.ObjectID]*models.Notification),
		unique: make(map[notificationKey]bool),
	}
}

func (r *fakeNotificationRepo) Insert(_ context.Context, notification *models.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := notificationKey{eventID: notification.EventID, userID: notification.UserID}
	if r.unique[key] {
		return false, nil
	}
	if notification.ID.IsZero() {
		notification.ID = primitive.NewObjectID()
	}
	clone := *notification
	r.rows[notification.ID] = &clone
	r.unique[key] = true
	return true, nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (r *fakeNotificationRepo) GetByUser(_ context.Context, userID primitive.ObjectID, _ *utils.PaginationParams) ([]*models.Notification, int64, error) {
	rows, _ := r.GetRecentByUser(context.Background(), userID, 1<<30)
	return rows, int64(len(rows)), nil
}

func (r *fakeNotificationRepo) GetRecentByUser(_ context.Context, userID primitive.ObjectID, limit int) ([]*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Notification
	for _, row := range r.rows {
		if row.UserID == userID {
			clone := *row
			out = append(out, &clone)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkRead(_ context.Context, id, userID primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID || row.ReadAt != nil {
		return false, nil
	}
	now := time.Now()
	row.ReadAt = &now
	return true, nil
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var count int64
	for _, row := range r.rows {
		if row.UserID == userID && row.ReadAt == nil {
			row.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, row := range r.rows {
		if row.UserID == userID && row.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			clone := *user
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) Update(_ context.Context, id primitive.ObjectID, _ map[string]interface{}) error {
	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func newFakeAuditRepo() *fakeAuditRepo { return &fakeAuditRepo{} }

func (r *fakeAuditRepo) Create(_ context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeAuditRepo) GetByResource(_ context.Context, resource, resourceID string, _ *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.Resource == resource && (resourceID == "" || e.ResourceID == resourceID) {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeAuditRepo) List(_ context.Context, _ *utils.PaginationParams) ([]*models.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.AuditLog(nil), r.entries...), int64(len(r.entries)), nil
}

// fakeCache implements CacheService in memory, including SetNX and the
// counters the fanout path leans on.
type fakeCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		values:   make(map[string][]byte),
		counters: make(map[string]int64),
	}
}

// reset simulates a cache flush or redis restart.
func (c *fakeCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string][]byte)
	c.counters = make(map[string]int64)
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count, ok := c.counters[key]; ok {
		data, _ := json.Marshal(count)
		return json.Unmarshal(data, dest)
	}
	data, ok := c.values[key]
	if !ok {
		return utils.ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count, ok := toInt64(value); ok {
		c.counters[key] = count
		delete(c.values, key)
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = data
	return nil
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
		delete(c.counters, key)
	}
	return nil
}

func (c *fakeCache) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	data, _ := json.Marshal(value)
	c.values[key] = data
	return true, nil
}

func (c *fakeCache) Increment(_ context.Context, key string, delta int64, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] += delta
	return c.counters[key], nil
}

func (c *fakeCache) Decrement(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] -= delta
	return c.counters[key], nil
}

func (c *fakeCache) Publish(_ context.Context, _ string, _ interface{}) error { return nil }
func (c *fakeCache) Ping(_ context.Context) error                             { return nil }

func (c *fakeCache) CacheRide(_ context.Context, _ *models.Ride) error { return nil }
func (c *fakeCache) GetCachedRide(_ context.Context, _ primitive.ObjectID) *models.Ride {
	return nil
}
func (c *fakeCache) InvalidateRide(_ context.Context, _ primitive.ObjectID) error { return nil }
