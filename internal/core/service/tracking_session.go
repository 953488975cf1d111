package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api/metrics"
	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

// Session owns every tracking component of one entity. Nothing in a session
// is visible to another entity's session.
type Session struct {
	entityID   string
	attachedAt time.Time
	clock      func() time.Time
	log        zerolog.Logger

	decoder   *PathDecoder
	feed      *PositionFeed
	progress  *ProgressTracker
	deviation *DeviationDetector

	onRecalculate func(domain.RecalculationEvent)

	// mu orders route installs against position evaluations.
	mu          sync.Mutex
	route       *domain.Route
	unsubscribe func()
}

type sessionDeps struct {
	source        ports.PositionSource
	push          ports.PositionSubscriber
	cfg           TrackingConfig
	clock         func() time.Time
	onRecalculate func(domain.RecalculationEvent)
}

func newSession(entityID string, deps sessionDeps, log zerolog.Logger) *Session {
	log = log.With().Str("entity_id", entityID).Logger()
	s := &Session{
		entityID:      entityID,
		attachedAt:    deps.clock(),
		clock:         deps.clock,
		log:           log,
		decoder:       NewPathDecoder(),
		onRecalculate: deps.onRecalculate,
	}
	s.feed = NewPositionFeed(entityID, deps.source, deps.push, deps.cfg.PollInterval, log)
	s.progress = NewProgressTracker(deps.cfg.Progress, log)
	s.deviation = NewDeviationDetector(deps.cfg.Deviation, s.decoder, s.triggerRecalculation, log)
	return s
}

// start subscribes the evaluators to the feed and attaches both channels.
// On failure nothing stays subscribed.
func (s *Session) start(ctx context.Context) error {
	unsubscribe := s.feed.Subscribe(s.onPosition)
	if err := s.feed.Start(ctx); err != nil {
		unsubscribe()
		return err
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// stop releases both channels synchronously.
func (s *Session) stop() {
	s.feed.Stop()

	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// applyRoute installs a new route as one atomic baseline: the decoded-path
// cache is invalidated, the path decoded afresh and both evaluators reset.
// A malformed encoding installs the baseline without geometry.
func (s *Session) applyRoute(route domain.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deviation.ClearRouteCache()
	path, err := s.decoder.Decode(route.EncodedPath)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		s.log.Warn().Err(err).Str("phase_tag", route.PhaseTag).Msg("route geometry unavailable")
	}

	s.progress.SetRoute(route.Baseline(), path)
	s.deviation.SetPath(path)
	r := route
	s.route = &r

	s.log.Info().
		Str("phase_tag", route.PhaseTag).
		Int("points", len(path)).
		Msg("route applied")
}

// onPosition runs for every record the feed accepts, in ObservedAt order.
func (s *Session) onPosition(rec domain.PositionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.progress.Evaluate(rec.Coordinate); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnreliableFix):
			s.log.Debug().Err(err).Msg("progress update skipped")
		case errors.Is(err, domain.ErrNoRoute):
		default:
			s.log.Warn().Err(err).Msg("progress evaluation failed")
		}
	}
	s.deviation.Evaluate(rec.Coordinate, s.clock())
}

// triggerRecalculation is the detector callback. It runs inside onPosition,
// with s.mu held.
func (s *Session) triggerRecalculation() {
	evt := domain.RecalculationEvent{
		ID:          uuid.NewString(),
		EntityID:    s.entityID,
		TriggeredAt: s.clock(),
	}
	if rec, ok := s.feed.Latest(); ok {
		evt.Position = rec.Coordinate
	}
	evt.DistanceMeters = s.deviation.State().DistanceMeters
	if s.route != nil {
		evt.PhaseTag = s.route.PhaseTag
	}
	if s.onRecalculate != nil {
		s.onRecalculate(evt)
	}
}

func (s *Session) snapshot() *ports.TrackingSnapshot {
	s.mu.Lock()
	hasRoute := s.route != nil
	var phase string
	if hasRoute {
		phase = s.route.PhaseTag
	}
	s.mu.Unlock()

	progress := s.progress.Published()
	snap := &ports.TrackingSnapshot{
		EntityID:   s.entityID,
		PhaseTag:   phase,
		HasRoute:   hasRoute,
		Deviation:  s.deviation.State(),
		AttachedAt: s.attachedAt,
		Progress: ports.ProgressView{
			RouteProgressState: progress,
			RemainingDistance:  domain.FormatDistance(progress.RemainingDistanceMeters),
			RemainingTime:      domain.FormatDuration(progress.RemainingTimeSeconds),
		},
	}
	if rec, ok := s.feed.Latest(); ok {
		snap.Position = &rec
	}
	return snap
}
