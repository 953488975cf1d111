package ports

import (
	"context"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// PositionRepository persists reported positions. Latest doubles as the poll channel.
type PositionRepository interface {
	Insert(ctx context.Context, rec domain.PositionRecord) error
	Latest(ctx context.Context, entityID string) (domain.PositionRecord, error)
}
