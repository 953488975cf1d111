package domain

import "time"

// DeviationStatus is the state of the off-route hysteresis machine.
type DeviationStatus string

const (
	StatusOnRoute         DeviationStatus = "on_route"
	StatusOffRoutePending DeviationStatus = "off_route_pending"
	StatusTriggered       DeviationStatus = "triggered"
)

// validTransitions defines the allowed deviation state machine transitions.
var validTransitions = map[DeviationStatus][]DeviationStatus{
	StatusOnRoute:         {StatusOffRoutePending},
	StatusOffRoutePending: {StatusOnRoute, StatusTriggered},
	StatusTriggered:       {StatusOnRoute},
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s DeviationStatus) CanTransitionTo(next DeviationStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeviationState is a snapshot of a detector. Zero timestamps mean "never".
type DeviationState struct {
	Status          DeviationStatus `json:"status"`
	PendingSince    time.Time       `json:"pending_since,omitempty"`
	LastTriggeredAt time.Time       `json:"last_triggered_at,omitempty"`
	// DistanceMeters is the last measured distance to the route, -1 when no geometry was available.
	DistanceMeters float64 `json:"distance_meters"`
}

// RecalculationEvent records one qualifying off-route episode.
type RecalculationEvent struct {
	ID             string     `json:"id" bson:"_id"`
	EntityID       string     `json:"entity_id" bson:"entity_id"`
	Position       Coordinate `json:"position" bson:"position"`
	DistanceMeters float64    `json:"distance_meters" bson:"distance_meters"`
	PhaseTag       string     `json:"phase_tag" bson:"phase_tag"`
	TriggeredAt    time.Time  `json:"triggered_at" bson:"triggered_at"`
}
