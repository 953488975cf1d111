package ports

import (
	"context"
	"time"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// RouteInput carries a freshly computed route from the route provider.
type RouteInput struct {
	EncodedPath            string
	InitialDistanceMeters  float64
	InitialDurationSeconds float64
	PhaseTag               string
}

// AttachInput starts tracking an entity. Route is optional; when nil the last
// stored route for the entity is restored.
type AttachInput struct {
	EntityID string
	Route    *RouteInput
}

// ProgressView is the display-ready rendering of a RouteProgressState.
type ProgressView struct {
	domain.RouteProgressState
	RemainingDistance string
	RemainingTime     string
}

// TrackingSnapshot is the full view of one tracked entity.
type TrackingSnapshot struct {
	EntityID   string
	PhaseTag   string
	HasRoute   bool
	Position   *domain.PositionRecord
	Progress   ProgressView
	Deviation  domain.DeviationState
	AttachedAt time.Time
}

// TrackingService manages the per-entity tracking sessions.
type TrackingService interface {
	Attach(ctx context.Context, in AttachInput) error
	Detach(ctx context.Context, entityID string) error
	ApplyRoute(ctx context.Context, entityID string, route RouteInput) error
	Refresh(ctx context.Context, entityID string) error
	Snapshot(entityID string) (*TrackingSnapshot, error)
}
