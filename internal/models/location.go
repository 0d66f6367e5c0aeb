package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Location is a GeoJSON point with optional display fields.
type Location struct {
	Type        string    `json:"type" bson:"type" default:"Point"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2"`
	Address     string    `json:"address" bson:"address"`
	City        string    `json:"city" bson:"city"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

func NewPoint(lat, lng float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
		Timestamp:   time.Now(),
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) >= 2 {
		return l.Coordinates[1]
	}
	return 0
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) >= 1 {
		return l.Coordinates[0]
	}
	return 0
}

// LocationSample is one driver position report for an in-progress ride.
// The latest sample per ride is kept in its own document (latest-wins);
// all samples are also appended to a bounded timeline.
type LocationSample struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideID     primitive.ObjectID `json:"ride_id" bson:"ride_id" validate:"required"`
	Latitude   float64            `json:"latitude" bson:"latitude" validate:"min=-90,max=90"`
	Longitude  float64            `json:"longitude" bson:"longitude" validate:"min=-180,max=180"`
	Speed      float64            `json:"speed" bson:"speed"`     // km/h
	Heading    float64            `json:"heading" bson:"heading"` // degrees, 0..360
	RecordedAt time.Time          `json:"recorded_at" bson:"recorded_at"`
}
