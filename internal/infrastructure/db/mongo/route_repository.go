package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

const (
	collectionRoutes         = "routes"
	collectionRecalculations = "route_recalculations"
)

// RouteRepository implements ports.RouteRepository using MongoDB.
type RouteRepository struct {
	db *mongo.Database
}

var _ ports.RouteRepository = (*RouteRepository)(nil)

// NewRouteRepository creates a new RouteRepository.
func NewRouteRepository(db *mongo.Database) *RouteRepository {
	return &RouteRepository{db: db}
}

// SaveRoute upserts the current route of an entity; one document per entity.
func (r *RouteRepository) SaveRoute(ctx context.Context, route domain.Route) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"entity_id": route.EntityID}
	_, err := r.db.Collection(collectionRoutes).ReplaceOne(ctx, filter, route, options.Replace().SetUpsert(true))
	return err
}

// FindRoute retrieves the stored route of an entity.
func (r *RouteRepository) FindRoute(ctx context.Context, entityID string) (*domain.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var route domain.Route
	err := r.db.Collection(collectionRoutes).FindOne(ctx, bson.M{"entity_id": entityID}).Decode(&route)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRouteNotFound
		}
		return nil, err
	}
	return &route, nil
}

// InsertRecalculation persists a trigger to the route_recalculations audit collection.
func (r *RouteRepository) InsertRecalculation(ctx context.Context, evt domain.RecalculationEvent) error {
	doc := bson.M{
		"_id":             evt.ID,
		"entity_id":       evt.EntityID,
		"phase_tag":       evt.PhaseTag,
		"distance_meters": evt.DistanceMeters,
		"triggered_at":    evt.TriggeredAt.UTC(),
		"recorded_at":     time.Now().UTC(),
		"position": bson.M{
			"lat": evt.Position.Lat,
			"lng": evt.Position.Lng,
		},
	}

	_, err := r.db.Collection(collectionRecalculations).InsertOne(ctx, doc)
	return err
}

// EnsureIndexes creates necessary indexes on the route collections.
func (r *RouteRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := r.db.Collection(collectionRoutes).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "entity_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := r.db.Collection(collectionRecalculations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "triggered_at", Value: -1}},
	})
	return err
}
