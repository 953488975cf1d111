package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api/metrics"
	"github.com/99minutos/job-tracking/internal/core/domain"
)

// ProgressConfig holds the thresholds of a ProgressTracker.
type ProgressConfig struct {
	// UnreliableFixMeters is the projected distance to the path above which a fix is ignored.
	UnreliableFixMeters float64
	// DistanceEpsilonMeters and TimeEpsilon gate what is published to observers.
	DistanceEpsilonMeters float64
	TimeEpsilon           time.Duration
}

// DefaultProgressConfig returns the thresholds the service ships with.
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{
		UnreliableFixMeters:   200,
		DistanceEpsilonMeters: 20,
		TimeEpsilon:           10 * time.Second,
	}
}

// ProgressTracker turns positions into remaining distance/time and progress
// percentage against the current route baseline.
//
// The computed state always reflects the latest reliable fix; the published
// state only moves when distance or time changed significantly, so observers
// do not flicker on GPS noise. Observers are called with the tracker locked
// and must not call back into it.
type ProgressTracker struct {
	cfg ProgressConfig
	log zerolog.Logger

	mu          sync.Mutex
	hasBaseline bool
	baseline    domain.RouteBaseline
	path        []domain.Coordinate
	computed    domain.RouteProgressState
	published   domain.RouteProgressState

	observers map[uint64]func(domain.RouteProgressState)
	nextObsID uint64
}

// NewProgressTracker creates a tracker without a baseline.
func NewProgressTracker(cfg ProgressConfig, log zerolog.Logger) *ProgressTracker {
	def := DefaultProgressConfig()
	if cfg.UnreliableFixMeters <= 0 {
		cfg.UnreliableFixMeters = def.UnreliableFixMeters
	}
	if cfg.DistanceEpsilonMeters <= 0 {
		cfg.DistanceEpsilonMeters = def.DistanceEpsilonMeters
	}
	if cfg.TimeEpsilon <= 0 {
		cfg.TimeEpsilon = def.TimeEpsilon
	}
	return &ProgressTracker{
		cfg:       cfg,
		log:       log.With().Str("component", "progress_tracker").Logger(),
		observers: make(map[uint64]func(domain.RouteProgressState)),
	}
}

// SetRoute installs the decoded path of a route. The baseline is replaced and
// the state reset when the phase changes or the initial distance differs
// materially; otherwise only the geometry is swapped. It reports whether a
// reset happened.
func (t *ProgressTracker) SetRoute(baseline domain.RouteBaseline, path []domain.Coordinate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.path = path

	reset := !t.hasBaseline ||
		baseline.PhaseTag != t.baseline.PhaseTag ||
		math.Abs(baseline.InitialDistanceMeters-t.baseline.InitialDistanceMeters) > t.cfg.DistanceEpsilonMeters
	if !reset {
		return false
	}

	t.hasBaseline = true
	t.baseline = baseline
	t.computed = baseline.Initial()
	t.published = t.computed
	t.log.Info().
		Str("phase_tag", baseline.PhaseTag).
		Float64("initial_distance_m", baseline.InitialDistanceMeters).
		Float64("initial_duration_s", baseline.InitialDurationSeconds).
		Msg("baseline reset")
	t.emit(t.published)
	return true
}

// Evaluate computes progress for pos. It returns the published state and
// whether this evaluation published a new one. ErrNoRoute, ErrInvalidCoordinate
// and ErrUnreliableFix leave every state untouched.
func (t *ProgressTracker) Evaluate(pos domain.Coordinate) (domain.RouteProgressState, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !pos.Valid() {
		return t.published, false, domain.ErrInvalidCoordinate
	}
	if !t.hasBaseline || len(t.path) == 0 {
		return t.published, false, domain.ErrNoRoute
	}

	proj, ok := domain.ProjectOntoPath(pos, t.path)
	if !ok {
		return t.published, false, domain.ErrNoRoute
	}
	if proj.DistanceMeters > t.cfg.UnreliableFixMeters {
		metrics.UnreliableFixesTotal.Inc()
		return t.published, false, fmt.Errorf("%w: %.0f m from route", domain.ErrUnreliableFix, proj.DistanceMeters)
	}

	t.computed = progressFor(t.baseline, domain.RemainingMeters(proj, t.path))

	if !t.significant(t.computed) {
		return t.published, false, nil
	}
	t.published = t.computed
	metrics.ProgressPublishedTotal.Inc()
	t.emit(t.published)
	return t.published, true, nil
}

// progressFor derives the full state from the remaining distance alone.
func progressFor(b domain.RouteBaseline, remaining float64) domain.RouteProgressState {
	if math.IsNaN(remaining) || remaining < 0 {
		remaining = 0
	}
	state := domain.RouteProgressState{
		RemainingDistanceMeters: remaining,
		RemainingTimeSeconds:    b.InitialDurationSeconds,
	}
	if b.InitialDistanceMeters <= 0 {
		return state
	}

	ratio := remaining / b.InitialDistanceMeters
	state.ProgressPercent = math.Max(0, math.Min(100, (1-ratio)*100))
	state.RemainingTimeSeconds = math.Ceil(b.InitialDurationSeconds * ratio)
	return state
}

func (t *ProgressTracker) significant(next domain.RouteProgressState) bool {
	dDist := math.Abs(next.RemainingDistanceMeters - t.published.RemainingDistanceMeters)
	dTime := math.Abs(next.RemainingTimeSeconds - t.published.RemainingTimeSeconds)
	return dDist > t.cfg.DistanceEpsilonMeters || dTime > t.cfg.TimeEpsilon.Seconds()
}

// Subscribe registers fn for every published state and returns its cancel function.
func (t *ProgressTracker) Subscribe(fn func(domain.RouteProgressState)) func() {
	t.mu.Lock()
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

func (t *ProgressTracker) emit(state domain.RouteProgressState) {
	for _, fn := range t.observers {
		fn(state)
	}
}

// Published returns the state last emitted to observers.
func (t *ProgressTracker) Published() domain.RouteProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.published
}

// Computed returns the true value of the last reliable evaluation.
func (t *ProgressTracker) Computed() domain.RouteProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.computed
}

// Baseline returns the current baseline and whether one is installed.
func (t *ProgressTracker) Baseline() (domain.RouteBaseline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline, t.hasBaseline
}
