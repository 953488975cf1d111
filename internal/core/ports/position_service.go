package ports

import (
	"context"
	"time"
)

// PositionReportInput is the DTO passed from the transport layer to PositionService.
type PositionReportInput struct {
	EntityID   string
	Lat        float64
	Lng        float64
	Address    string
	ObservedAt time.Time
}

// PositionService ingests position reports coming from the agent app.
type PositionService interface {
	Process(ctx context.Context, report PositionReportInput) error
}
