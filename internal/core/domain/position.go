package domain

import (
	"math"
	"time"
)

// Coordinate represents a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether the coordinate is finite and inside the lat/lng ranges.
// Invalid coordinates are treated as absent and never reach distance math.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// PositionOrigin names the channel a position record arrived through.
type PositionOrigin string

const (
	OriginPush    PositionOrigin = "push"
	OriginPoll    PositionOrigin = "poll"
	OriginRefresh PositionOrigin = "refresh"
)

// PositionRecord is a single observation of the agent's location.
// Records are never mutated, only replaced by a strictly newer one.
type PositionRecord struct {
	EntityID   string     `json:"entity_id" bson:"entity_id"`
	Coordinate Coordinate `json:"coordinate" bson:"coordinate"`
	Address    string     `json:"address,omitempty" bson:"address,omitempty"`
	ObservedAt time.Time  `json:"observed_at" bson:"observed_at"`
}

// NewerThan reports whether r was observed strictly after other.
func (r PositionRecord) NewerThan(other PositionRecord) bool {
	return r.ObservedAt.After(other.ObservedAt)
}
