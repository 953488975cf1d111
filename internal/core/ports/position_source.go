package ports

import (
	"context"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// PositionSource is the pull side of the position collaborator.
type PositionSource interface {
	// Fetch returns the latest known record for the entity.
	Fetch(ctx context.Context, entityID string) (domain.PositionRecord, error)
}

// PositionSubscriber is the optional push side of the position collaborator.
// The returned function removes the listener; it must be safe to call more than once.
// Implementations may lose and regain their connection silently.
type PositionSubscriber interface {
	Subscribe(ctx context.Context, entityID string, fn func(domain.PositionRecord)) (unsubscribe func(), err error)
}

// PositionPublisher fans an accepted report out to push subscribers.
type PositionPublisher interface {
	Publish(ctx context.Context, rec domain.PositionRecord) error
}

// RecalculationNotifier tells the outside world a route has to be recomputed.
// The core never calls the route provider itself.
type RecalculationNotifier interface {
	NotifyRecalculation(ctx context.Context, evt domain.RecalculationEvent) error
}
