package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api/metrics"
	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

const notifyTimeout = 5 * time.Second

// TrackingConfig groups the tunables of every per-entity component.
type TrackingConfig struct {
	PollInterval time.Duration
	Progress     ProgressConfig
	Deviation    DeviationConfig
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TrackingService is the registry of tracking sessions, one per active job.
type TrackingService struct {
	source   ports.PositionSource
	push     ports.PositionSubscriber
	routes   ports.RouteRepository
	notifier ports.RecalculationNotifier
	cfg      TrackingConfig
	log      zerolog.Logger

	// ctx outlives the requests that attach sessions; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	sessions  map[string]*Session
	attaching map[string]struct{}
	closed    bool

	notifyWG sync.WaitGroup
}

// NewTrackingService returns a TrackingService. push and notifier may be nil.
func NewTrackingService(
	source ports.PositionSource,
	push ports.PositionSubscriber,
	routes ports.RouteRepository,
	notifier ports.RecalculationNotifier,
	cfg TrackingConfig,
	log zerolog.Logger,
) *TrackingService {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TrackingService{
		source:    source,
		push:      push,
		routes:    routes,
		notifier:  notifier,
		cfg:       cfg,
		log:       log.With().Str("component", "tracking_service").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
		attaching: make(map[string]struct{}),
	}
}

// Attach creates the entity's session and starts both position channels.
// Without an explicit route the last stored route is restored.
func (s *TrackingService) Attach(ctx context.Context, in ports.AttachInput) error {
	entityID := strings.TrimSpace(in.EntityID)
	if entityID == "" {
		return fmt.Errorf("attach: entity id is required")
	}

	route, persist := s.initialRoute(ctx, entityID, in.Route)

	// Reserve the id, then start the session without holding s.mu: the first
	// subscription and poll may block on the transports.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("attach %s: %w", entityID, domain.ErrShuttingDown)
	}
	_, exists := s.sessions[entityID]
	_, pending := s.attaching[entityID]
	if exists || pending {
		s.mu.Unlock()
		return fmt.Errorf("attach %s: %w", entityID, domain.ErrSessionExists)
	}
	s.attaching[entityID] = struct{}{}
	s.mu.Unlock()

	sess := newSession(entityID, sessionDeps{
		source:        s.source,
		push:          s.push,
		cfg:           s.cfg,
		clock:         s.cfg.Clock,
		onRecalculate: s.recalculate,
	}, s.log)
	if route != nil {
		sess.applyRoute(*route)
	}
	startErr := sess.start(s.ctx)

	s.mu.Lock()
	delete(s.attaching, entityID)
	if startErr != nil {
		s.mu.Unlock()
		return fmt.Errorf("attach %s: %w", entityID, startErr)
	}
	if s.closed {
		s.mu.Unlock()
		sess.stop()
		return fmt.Errorf("attach %s: %w", entityID, domain.ErrShuttingDown)
	}
	s.sessions[entityID] = sess
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	if persist {
		s.saveRoute(ctx, *route)
	}

	s.log.Info().Str("entity_id", entityID).Bool("has_route", route != nil).Msg("tracking attached")
	return nil
}

// initialRoute resolves the route a new session starts with and whether it must be persisted.
func (s *TrackingService) initialRoute(ctx context.Context, entityID string, in *ports.RouteInput) (*domain.Route, bool) {
	if in != nil {
		r := s.toRoute(entityID, *in)
		return &r, true
	}
	if s.routes == nil {
		return nil, false
	}
	stored, err := s.routes.FindRoute(ctx, entityID)
	if err != nil {
		if !errors.Is(err, domain.ErrRouteNotFound) {
			s.log.Warn().Err(err).Str("entity_id", entityID).Msg("failed to restore stored route")
		}
		return nil, false
	}
	return stored, false
}

// Detach stops both channels of the entity's session and forgets it.
func (s *TrackingService) Detach(_ context.Context, entityID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[entityID]
	if ok {
		delete(s.sessions, entityID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("detach %s: %w", entityID, domain.ErrSessionNotFound)
	}
	sess.stop()
	metrics.ActiveSessions.Dec()

	s.log.Info().Str("entity_id", entityID).Msg("tracking detached")
	return nil
}

// ApplyRoute hands a freshly computed route to the entity's session.
func (s *TrackingService) ApplyRoute(ctx context.Context, entityID string, in ports.RouteInput) error {
	sess, err := s.session(entityID)
	if err != nil {
		return fmt.Errorf("apply route: %w", err)
	}
	route := s.toRoute(entityID, in)
	sess.applyRoute(route)
	s.saveRoute(ctx, route)
	return nil
}

// Refresh performs the out-of-band fetch used when a client regains foreground.
func (s *TrackingService) Refresh(ctx context.Context, entityID string) error {
	sess, err := s.session(entityID)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return sess.feed.Refresh(ctx)
}

// Snapshot returns the current view of the entity.
func (s *TrackingService) Snapshot(entityID string) (*ports.TrackingSnapshot, error) {
	sess, err := s.session(entityID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return sess.snapshot(), nil
}

// Shutdown detaches every session and waits for pending recalculation notifications.
func (s *TrackingService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
		metrics.ActiveSessions.Dec()
	}

	done := make(chan struct{})
	go func() {
		s.notifyWG.Wait()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (s *TrackingService) session(entityID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[entityID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", entityID, domain.ErrSessionNotFound)
	}
	return sess, nil
}

func (s *TrackingService) toRoute(entityID string, in ports.RouteInput) domain.Route {
	return domain.Route{
		EntityID:               entityID,
		EncodedPath:            in.EncodedPath,
		InitialDistanceMeters:  in.InitialDistanceMeters,
		InitialDurationSeconds: in.InitialDurationSeconds,
		PhaseTag:               in.PhaseTag,
		ComputedAt:             s.cfg.Clock().UTC(),
	}
}

// saveRoute persists the route so a restarted service can restore it (non-fatal on failure).
func (s *TrackingService) saveRoute(ctx context.Context, route domain.Route) {
	if s.routes == nil {
		return
	}
	if err := s.routes.SaveRoute(ctx, route); err != nil {
		s.log.Warn().Err(err).Str("entity_id", route.EntityID).Msg("failed to persist route")
	}
}

// recalculate records and announces a recalculation without blocking the
// position pipeline that triggered it.
func (s *TrackingService) recalculate(evt domain.RecalculationEvent) {
	metrics.RecalculationsTotal.Inc()
	s.log.Info().
		Str("entity_id", evt.EntityID).
		Str("event_id", evt.ID).
		Float64("distance_m", evt.DistanceMeters).
		Msg("route recalculation requested")

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if s.routes != nil {
			if err := s.routes.InsertRecalculation(ctx, evt); err != nil {
				s.log.Warn().Err(err).Str("entity_id", evt.EntityID).Msg("failed to record recalculation")
			}
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyRecalculation(ctx, evt); err != nil {
				s.log.Warn().Err(err).Str("entity_id", evt.EntityID).Msg("failed to notify route planner")
			}
		}
	}()
}
