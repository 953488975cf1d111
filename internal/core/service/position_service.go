package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api/metrics"
	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

// DedupChecker abstracts the idempotency store (Redis). Claim is atomic:
// exactly one caller gets true for a given report.
type DedupChecker interface {
	Claim(ctx context.Context, entityID string, observedAt time.Time) (bool, error)
	Release(ctx context.Context, entityID string, observedAt time.Time) error
}

// DefaultMaxClockSkew bounds how far ahead of the server clock a report may be stamped.
const DefaultMaxClockSkew = 30 * time.Second

// PositionServiceConfig tunes report admission. Zero values take the defaults.
type PositionServiceConfig struct {
	MaxClockSkew time.Duration
	Clock        func() time.Time
}

type positionService struct {
	positions ports.PositionRepository
	publisher ports.PositionPublisher
	dedup     DedupChecker
	cfg       PositionServiceConfig
	log       zerolog.Logger
}

// NewPositionService returns a PositionService implementation. publisher may be
// nil, in which case subscribers only see reports through the poll channel.
func NewPositionService(
	positions ports.PositionRepository,
	publisher ports.PositionPublisher,
	dedup DedupChecker,
	cfg PositionServiceConfig,
	log zerolog.Logger,
) ports.PositionService {
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = DefaultMaxClockSkew
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &positionService{
		positions: positions,
		publisher: publisher,
		dedup:     dedup,
		cfg:       cfg,
		log:       log,
	}
}

// Process validates, deduplicates, persists and publishes a single report.
func (s *positionService) Process(ctx context.Context, in ports.PositionReportInput) error {
	start := time.Now()
	defer func() { metrics.ReportProcessingDuration.Observe(time.Since(start).Seconds()) }()

	rec := domain.PositionRecord{
		EntityID:   strings.TrimSpace(in.EntityID),
		Coordinate: domain.Coordinate{Lat: in.Lat, Lng: in.Lng},
		Address:    in.Address,
		// Mongo and the JSON push payload keep milliseconds; the dedup key and the
		// feed comparison must see the same instant whichever channel delivers it.
		ObservedAt: in.ObservedAt.UTC().Truncate(time.Millisecond),
	}
	if rec.EntityID == "" || !rec.Coordinate.Valid() || rec.ObservedAt.IsZero() {
		metrics.ReportsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("process report: %w", domain.ErrInvalidCoordinate)
	}
	// A future stamp would win every newer-than comparison and pin the feed.
	if limit := s.cfg.Clock().Add(s.cfg.MaxClockSkew); rec.ObservedAt.After(limit) {
		metrics.ReportsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("process report: observed_at %s: %w", rec.ObservedAt.Format(time.RFC3339), domain.ErrFutureObservation)
	}

	// 1. Idempotency: a report already claimed is skipped silently.
	claimed, err := s.dedup.Claim(ctx, rec.EntityID, rec.ObservedAt)
	if err != nil {
		s.log.Warn().Err(err).Str("entity_id", rec.EntityID).Msg("dedup claim failed, processing anyway")
	} else if !claimed {
		metrics.ReportsProcessedTotal.WithLabelValues("duplicate").Inc()
		s.log.Debug().Str("entity_id", rec.EntityID).Time("observed_at", rec.ObservedAt).Msg("duplicate report skipped")
		return nil
	}

	// 2. Persist; the poll channel reads from here.
	if err := s.positions.Insert(ctx, rec); err != nil {
		metrics.ReportsProcessedTotal.WithLabelValues("error").Inc()
		// Give the claim back so a redelivery is not mistaken for a duplicate.
		if claimed {
			if relErr := s.dedup.Release(ctx, rec.EntityID, rec.ObservedAt); relErr != nil {
				s.log.Warn().Err(relErr).Str("entity_id", rec.EntityID).Msg("failed to release dedup key")
			}
		}
		return fmt.Errorf("process report: insert: %w", err)
	}

	// 3. Push to live subscribers (non-fatal: the poll channel covers a lost publish).
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("entity_id", rec.EntityID).Msg("failed to publish position")
		}
	}

	metrics.ReportsProcessedTotal.WithLabelValues("stored").Inc()
	s.log.Debug().
		Str("entity_id", rec.EntityID).
		Time("observed_at", rec.ObservedAt).
		Msg("position stored")

	return nil
}
