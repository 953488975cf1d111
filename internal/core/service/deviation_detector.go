package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// DeviationConfig holds the hysteresis parameters of a DeviationDetector.
type DeviationConfig struct {
	MaxDeviationMeters float64
	MinDwell           time.Duration
	Cooldown           time.Duration
}

// DefaultDeviationConfig returns the thresholds the service ships with.
func DefaultDeviationConfig() DeviationConfig {
	return DeviationConfig{
		MaxDeviationMeters: 50,
		MinDwell:           3 * time.Second,
		Cooldown:           10 * time.Second,
	}
}

// DeviationDetector decides when the entity has been off the route long
// enough to recompute it. onRecalculate fires at most once per continuous
// off-route episode and never twice within Cooldown.
//
// After firing, the detector drops its geometry and clears the decoder cache:
// it stays Triggered until SetPath installs a new route.
type DeviationDetector struct {
	cfg           DeviationConfig
	decoder       *PathDecoder
	onRecalculate func()
	log           zerolog.Logger

	mu    sync.Mutex
	path  []domain.Coordinate
	state domain.DeviationState
}

// NewDeviationDetector creates a detector in the OnRoute state with no geometry.
func NewDeviationDetector(cfg DeviationConfig, decoder *PathDecoder, onRecalculate func(), log zerolog.Logger) *DeviationDetector {
	def := DefaultDeviationConfig()
	if cfg.MaxDeviationMeters <= 0 {
		cfg.MaxDeviationMeters = def.MaxDeviationMeters
	}
	if cfg.MinDwell < 0 {
		cfg.MinDwell = def.MinDwell
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &DeviationDetector{
		cfg:           cfg,
		decoder:       decoder,
		onRecalculate: onRecalculate,
		log:           log.With().Str("component", "deviation_detector").Logger(),
		state:         domain.DeviationState{Status: domain.StatusOnRoute, DistanceMeters: -1},
	}
}

// SetPath installs the geometry of a new route and returns the machine to OnRoute.
// The cooldown clock is kept.
func (d *DeviationDetector) SetPath(path []domain.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.path = path
	d.state.Status = domain.StatusOnRoute
	d.state.PendingSince = time.Time{}
	d.state.DistanceMeters = -1
}

// ClearRouteCache drops the geometry and every decoded path, so no check can
// run against a stale route until SetPath is called again.
func (d *DeviationDetector) ClearRouteCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

func (d *DeviationDetector) clearLocked() {
	d.path = nil
	if d.decoder != nil {
		d.decoder.Reset()
	}
}

// Evaluate advances the state machine with a position observed at now.
// Without geometry or with an invalid position nothing changes.
func (d *DeviationDetector) Evaluate(pos domain.Coordinate, now time.Time) domain.DeviationState {
	fire := false
	defer func() {
		if fire && d.onRecalculate != nil {
			d.onRecalculate()
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	dist, ok := domain.DistanceToPath(pos, d.path, d.cfg.MaxDeviationMeters/2)
	if !ok {
		return d.state
	}
	d.state.DistanceMeters = dist

	if dist <= d.cfg.MaxDeviationMeters {
		if d.state.Status == domain.StatusOffRoutePending {
			d.log.Debug().Float64("distance_m", dist).Msg("back on route before dwell elapsed")
			d.transition(domain.StatusOnRoute)
			d.state.PendingSince = time.Time{}
		}
		return d.state
	}

	switch d.state.Status {
	case domain.StatusOnRoute:
		d.transition(domain.StatusOffRoutePending)
		d.state.PendingSince = now
		d.log.Debug().Float64("distance_m", dist).Msg("off route, dwell started")

	case domain.StatusOffRoutePending:
		if now.Sub(d.state.PendingSince) < d.cfg.MinDwell {
			break
		}
		if !d.state.LastTriggeredAt.IsZero() && now.Sub(d.state.LastTriggeredAt) < d.cfg.Cooldown {
			break
		}
		d.transition(domain.StatusTriggered)
		d.state.LastTriggeredAt = now
		d.state.PendingSince = time.Time{}
		d.clearLocked()
		fire = true
		d.log.Info().Float64("distance_m", dist).Msg("sustained deviation, route recalculation requested")
	}
	return d.state
}

func (d *DeviationDetector) transition(next domain.DeviationStatus) {
	if !d.state.Status.CanTransitionTo(next) {
		d.log.Error().Err(domain.ErrInvalidTransition).
			Str("from", string(d.state.Status)).
			Str("to", string(next)).
			Msg("deviation transition rejected")
		return
	}
	d.state.Status = next
}

// State returns a snapshot of the machine.
func (d *DeviationDetector) State() domain.DeviationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// HasPath reports whether geometry is installed.
func (d *DeviationDetector) HasPath() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.path) > 0
}
