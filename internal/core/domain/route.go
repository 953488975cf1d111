package domain

import (
	"fmt"
	"math"
	"time"
)

// Route is what the route provider hands over whenever a route is (re)computed.
type Route struct {
	EntityID               string    `json:"entity_id" bson:"entity_id"`
	EncodedPath            string    `json:"encoded_path" bson:"encoded_path"`
	InitialDistanceMeters  float64   `json:"initial_distance_meters" bson:"initial_distance_meters"`
	InitialDurationSeconds float64   `json:"initial_duration_seconds" bson:"initial_duration_seconds"`
	PhaseTag               string    `json:"phase_tag" bson:"phase_tag"`
	ComputedAt             time.Time `json:"computed_at" bson:"computed_at"`
}

// Baseline extracts the figures progress is measured against.
func (r Route) Baseline() RouteBaseline {
	return RouteBaseline{
		InitialDistanceMeters:  r.InitialDistanceMeters,
		InitialDurationSeconds: r.InitialDurationSeconds,
		PhaseTag:               r.PhaseTag,
	}
}

// RouteBaseline holds the initial distance/duration of a route leg.
type RouteBaseline struct {
	InitialDistanceMeters  float64 `json:"initial_distance_meters"`
	InitialDurationSeconds float64 `json:"initial_duration_seconds"`
	PhaseTag               string  `json:"phase_tag"`
}

// Initial returns the progress state at the start of the leg.
func (b RouteBaseline) Initial() RouteProgressState {
	return RouteProgressState{
		RemainingDistanceMeters: b.InitialDistanceMeters,
		RemainingTimeSeconds:    b.InitialDurationSeconds,
		ProgressPercent:         0,
	}
}

// RouteProgressState is recomputed from scratch on every evaluation.
type RouteProgressState struct {
	RemainingDistanceMeters float64 `json:"remaining_distance_meters"`
	RemainingTimeSeconds    float64 `json:"remaining_time_seconds"`
	ProgressPercent         float64 `json:"progress_percent"`
}

// FormatDistance renders meters for display: whole meters under 1 km,
// kilometers with one decimal otherwise.
func FormatDistance(meters float64) string {
	if math.IsNaN(meters) || meters < 0 {
		meters = 0
	}
	if m := int(math.Round(meters)); m < 1000 {
		return fmt.Sprintf("%d m", m)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders seconds for display: whole minutes (rounded up)
// under an hour, hours and minutes otherwise.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	minutes := int(math.Ceil(seconds / 60))
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%d h %d min", minutes/60, minutes%60)
}
