package ports

import (
	"context"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// RouteRepository stores the current route per entity and the recalculation audit trail.
type RouteRepository interface {
	// SaveRoute replaces the stored route for route.EntityID.
	SaveRoute(ctx context.Context, route domain.Route) error

	// FindRoute returns domain.ErrRouteNotFound when nothing was stored yet.
	FindRoute(ctx context.Context, entityID string) (*domain.Route, error)

	// InsertRecalculation appends to the route_recalculations audit collection.
	InsertRecalculation(ctx context.Context, evt domain.RecalculationEvent) error
}
