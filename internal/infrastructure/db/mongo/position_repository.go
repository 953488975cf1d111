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

const collectionPositions = "positions"

// positionDocument is the stored shape of a report.
type positionDocument struct {
	EntityID   string            `bson:"entity_id"`
	Coordinate domain.Coordinate `bson:"coordinate"`
	Address    string            `bson:"address,omitempty"`
	ObservedAt time.Time         `bson:"observed_at"`
	ReceivedAt time.Time         `bson:"received_at"`
}

// PositionRepository implements ports.PositionRepository using MongoDB.
// Latest also serves as the poll channel (ports.PositionSource).
type PositionRepository struct {
	col *mongo.Collection
}

var (
	_ ports.PositionRepository = (*PositionRepository)(nil)
	_ ports.PositionSource     = (*PositionRepository)(nil)
)

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *mongo.Database) *PositionRepository {
	return &PositionRepository{col: db.Collection(collectionPositions)}
}

// Insert appends a report to the positions collection.
func (r *PositionRepository) Insert(ctx context.Context, rec domain.PositionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, positionDocument{
		EntityID:   rec.EntityID,
		Coordinate: rec.Coordinate,
		Address:    rec.Address,
		ObservedAt: rec.ObservedAt.UTC(),
		ReceivedAt: time.Now().UTC(),
	})
	return err
}

// Latest returns the most recently observed report for the entity.
func (r *PositionRepository) Latest(ctx context.Context, entityID string) (domain.PositionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "observed_at", Value: -1}})

	var doc positionDocument
	err := r.col.FindOne(ctx, bson.M{"entity_id": entityID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PositionRecord{}, domain.ErrNoPosition
		}
		return domain.PositionRecord{}, err
	}
	return domain.PositionRecord{
		EntityID:   doc.EntityID,
		Coordinate: doc.Coordinate,
		Address:    doc.Address,
		ObservedAt: doc.ObservedAt,
	}, nil
}

// Fetch satisfies ports.PositionSource.
func (r *PositionRepository) Fetch(ctx context.Context, entityID string) (domain.PositionRecord, error) {
	return r.Latest(ctx, entityID)
}

// EnsureIndexes creates necessary indexes on the positions collection.
func (r *PositionRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "observed_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32((7 * 24 * time.Hour).Seconds())),
		},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
