package validators

import (
	"math"
	"time"
)

type LocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Address   string  `json:"address" validate:"omitempty,max=255"`
	City      string  `json:"city" validate:"omitempty,max=100"`
}

type CreateRideRequest struct {
	Origin        LocationRequest `json:"origin" validate:"required"`
	Destination   LocationRequest `json:"destination" validate:"required"`
	DepartureTime time.Time       `json:"departure_time" validate:"required,future_date"`
	TotalSeats    int             `json:"total_seats" validate:"required,min=1,max=8"`
}

type CancelRideRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type PurgeRideRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type LocationUpdateRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Speed     float64 `json:"speed" validate:"omitempty,min=0"`
	Heading   float64 `json:"heading" validate:"omitempty,heading"`
}

func ValidateCreateRide(req *CreateRideRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if isSameLocation(req.Origin, req.Destination) {
		errors = append(errors, ValidationError{
			Field:   "destination",
			Message: "Origin and destination must be different",
		})
	}

	distance := calculateDistance(req.Origin, req.Destination)
	if distance < 0.1 { // 100 meters
		errors = append(errors, ValidationError{
			Field:   "destination",
			Message: "Ride distance is too short",
		})
	}

	return errors
}

func isSameLocation(a, b LocationRequest) bool {
	const epsilon = 0.0001 // ~11 meters
	return math.Abs(a.Latitude-b.Latitude) < epsilon && math.Abs(a.Longitude-b.Longitude) < epsilon
}

// calculateDistance returns the haversine distance in kilometers.
func calculateDistance(a, b LocationRequest) float64 {
	const earthRadiusKm = 6371.0

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}
