package handler

import "time"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request types ---

type positionRequest struct {
	EntityID   string    `json:"entity_id"   validate:"required,max=64"`
	Lat        *float64  `json:"lat"         validate:"required,gte=-90,lte=90"`
	Lng        *float64  `json:"lng"         validate:"required,gte=-180,lte=180"`
	Address    string    `json:"address"     validate:"max=512"`
	ObservedAt time.Time `json:"observed_at" validate:"required"`
}

type routeRequest struct {
	EncodedPath            string  `json:"encoded_path"`
	InitialDistanceMeters  float64 `json:"initial_distance_meters"  validate:"gte=0"`
	InitialDurationSeconds float64 `json:"initial_duration_seconds" validate:"gte=0"`
	PhaseTag               string  `json:"phase_tag"                validate:"required,max=64"`
}

type attachRequest struct {
	Route *routeRequest `json:"route"`
}

// --- Response types ---

type acceptedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

type positionResponse struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Address    string    `json:"address,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

type progressResponse struct {
	RemainingDistanceMeters float64 `json:"remaining_distance_meters"`
	RemainingTimeSeconds    float64 `json:"remaining_time_seconds"`
	ProgressPercent         float64 `json:"progress_percent"`
	RemainingDistance       string  `json:"remaining_distance"`
	RemainingTime           string  `json:"remaining_time"`
}

type deviationResponse struct {
	Status          string     `json:"status"`
	DistanceMeters  *float64   `json:"distance_meters,omitempty"`
	PendingSince    *time.Time `json:"pending_since,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

type trackingLinks struct {
	Self    string `json:"self"`
	Route   string `json:"route"`
	Refresh string `json:"refresh"`
}

type trackingResponse struct {
	EntityID   string            `json:"entity_id"`
	PhaseTag   string            `json:"phase_tag,omitempty"`
	HasRoute   bool              `json:"has_route"`
	Position   *positionResponse `json:"position,omitempty"`
	Progress   progressResponse  `json:"progress"`
	Deviation  deviationResponse `json:"deviation"`
	AttachedAt time.Time         `json:"attached_at"`
	Links      trackingLinks     `json:"_links"`
}
