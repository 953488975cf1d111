package service

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

// straightPath runs east along the equator for ~1112 m.
var straightPath = []domain.Coordinate{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}}

const metersPerDegreeLat = 111194.93

func newTestTracker() *ProgressTracker {
	return NewProgressTracker(DefaultProgressConfig(), zerolog.Nop())
}

func TestProgressTracker_MidpointOfStraightPath(t *testing.T) {
	tr := newTestTracker()
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 300, PhaseTag: "pickup"}, straightPath)

	state, published, err := tr.Evaluate(domain.Coordinate{Lat: 0, Lng: 0.005})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !published {
		t.Fatal("expected the first evaluation to publish")
	}
	if math.Abs(state.RemainingDistanceMeters-555) > 555*0.05 {
		t.Errorf("remaining distance = %.1f, want ≈555", state.RemainingDistanceMeters)
	}
	if math.Abs(state.ProgressPercent-50) > 1 {
		t.Errorf("progress = %.2f%%, want ≈50%%", state.ProgressPercent)
	}
	if state.RemainingTimeSeconds < 148 || state.RemainingTimeSeconds > 152 {
		t.Errorf("remaining time = %.0f s, want ≈150", state.RemainingTimeSeconds)
	}
	if state.RemainingTimeSeconds != math.Ceil(state.RemainingTimeSeconds) {
		t.Errorf("remaining time %.3f is not rounded up to whole seconds", state.RemainingTimeSeconds)
	}
}

func TestProgressTracker_UnreliableFixIgnored(t *testing.T) {
	tr := newTestTracker()
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 300}, straightPath)
	before, _, _ := tr.Evaluate(domain.Coordinate{Lat: 0, Lng: 0.005})

	// ~333 m north of the path.
	state, published, err := tr.Evaluate(domain.Coordinate{Lat: 0.003, Lng: 0.008})
	if !errors.Is(err, domain.ErrUnreliableFix) {
		t.Fatalf("expected ErrUnreliableFix, got %v", err)
	}
	if published {
		t.Error("unreliable fix must not publish")
	}
	if state != before || tr.Computed() != before {
		t.Errorf("state changed on unreliable fix: published=%+v computed=%+v", state, tr.Computed())
	}

	// ~150 m off is still trusted.
	if _, _, err := tr.Evaluate(domain.Coordinate{Lat: 150 / metersPerDegreeLat, Lng: 0.008}); err != nil {
		t.Fatalf("fix within the guard rejected: %v", err)
	}
}

func TestProgressTracker_GuardUsesProjectedDistance(t *testing.T) {
	tr := newTestTracker()
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 300}, straightPath)

	// 150 m beside the midpoint: ~575 m from either vertex, 150 m from the segment.
	pos := domain.Coordinate{Lat: 150 / metersPerDegreeLat, Lng: 0.005}
	for _, v := range straightPath {
		if d := domain.HaversineMeters(pos, v); d <= DefaultProgressConfig().UnreliableFixMeters {
			t.Fatalf("fixture vertex only %.0f m away", d)
		}
	}

	state, _, err := tr.Evaluate(pos)
	if err != nil {
		t.Fatalf("fix beside a long segment rejected: %v", err)
	}
	if math.Abs(state.ProgressPercent-50) > 1 {
		t.Errorf("progress = %.2f%%, want ≈50%%", state.ProgressPercent)
	}
}

func TestProgressTracker_PublishesOnlySignificantChanges(t *testing.T) {
	tr := newTestTracker()
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 300}, straightPath)

	var emitted []domain.RouteProgressState
	tr.Subscribe(func(s domain.RouteProgressState) { emitted = append(emitted, s) })

	first, _, _ := tr.Evaluate(domain.Coordinate{Lng: 0.005})

	// 10 m further along: below both epsilons (10 m and ~2.7 s).
	_, published, err := tr.Evaluate(domain.Coordinate{Lng: 0.005 + 10/metersPerDegreeLat})
	if err != nil || published {
		t.Fatalf("small move published=%v err=%v", published, err)
	}
	if tr.Published() != first {
		t.Fatal("published state moved on a small change")
	}
	if tr.Computed().RemainingDistanceMeters >= first.RemainingDistanceMeters {
		t.Fatal("computed state must track every reliable fix")
	}

	// 30 m further along crosses the distance epsilon.
	_, published, _ = tr.Evaluate(domain.Coordinate{Lng: 0.005 + 30/metersPerDegreeLat})
	if !published {
		t.Fatal("significant move not published")
	}
	if len(emitted) != 2 {
		t.Fatalf("expected 2 emissions, got %d", len(emitted))
	}
}

func TestProgressTracker_TimeEpsilonAlonePublishes(t *testing.T) {
	tr := newTestTracker()
	// Slow leg: 15 m of remaining distance is worth ~40 s.
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 3000}, straightPath)
	tr.Evaluate(domain.Coordinate{Lng: 0.005})

	_, published, _ := tr.Evaluate(domain.Coordinate{Lng: 0.005 + 15/metersPerDegreeLat})
	if !published {
		t.Fatal("a time change above the epsilon must publish")
	}
}

func TestProgressTracker_SetRouteResetRules(t *testing.T) {
	tr := newTestTracker()
	base := domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 300, PhaseTag: "pickup"}

	if !tr.SetRoute(base, straightPath) {
		t.Fatal("first route must reset")
	}
	if got := tr.Published(); got != base.Initial() {
		t.Fatalf("initial state = %+v, want %+v", got, base.Initial())
	}
	tr.Evaluate(domain.Coordinate{Lng: 0.005})

	// Same phase, negligible change: geometry swapped, state kept.
	same := base
	same.InitialDistanceMeters = 1115
	if tr.SetRoute(same, straightPath) {
		t.Error("non-material change reset the baseline")
	}
	if b, _ := tr.Baseline(); b.InitialDistanceMeters != 1110 {
		t.Errorf("baseline replaced: %+v", b)
	}
	if tr.Published().ProgressPercent == 0 {
		t.Error("progress lost on non-material change")
	}

	// Material distance change.
	longer := base
	longer.InitialDistanceMeters = 2000
	if !tr.SetRoute(longer, straightPath) {
		t.Error("material distance change must reset")
	}
	if tr.Published().ProgressPercent != 0 {
		t.Error("progress not reset")
	}

	// New phase.
	delivery := longer
	delivery.PhaseTag = "delivery"
	if !tr.SetRoute(delivery, straightPath) {
		t.Error("phase change must reset")
	}
}

func TestProgressTracker_ZeroBaselineDistance(t *testing.T) {
	tr := newTestTracker()
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 0, InitialDurationSeconds: 120}, straightPath)

	state, _, err := tr.Evaluate(domain.Coordinate{Lng: 0.005})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.ProgressPercent != 0 || math.IsNaN(state.ProgressPercent) {
		t.Errorf("progress = %v, want 0", state.ProgressPercent)
	}
	if state.RemainingTimeSeconds != 120 {
		t.Errorf("remaining time = %v, want the initial duration", state.RemainingTimeSeconds)
	}
}

func TestProgressTracker_PercentClamped(t *testing.T) {
	tr := newTestTracker()
	// Baseline shorter than the geometry: remaining exceeds the initial distance.
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 500, InitialDurationSeconds: 100}, straightPath)

	state, _, _ := tr.Evaluate(domain.Coordinate{Lng: 0})
	if state.ProgressPercent != 0 {
		t.Errorf("progress = %v, want clamp to 0", state.ProgressPercent)
	}

	state, _, _ = tr.Evaluate(domain.Coordinate{Lng: 0.01})
	if state.ProgressPercent != 100 || state.RemainingDistanceMeters != 0 {
		t.Errorf("at destination: %+v", state)
	}
}

func TestProgressTracker_WithoutRoute(t *testing.T) {
	tr := newTestTracker()
	if _, _, err := tr.Evaluate(domain.Coordinate{Lng: 0.005}); !errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}

	// A baseline without geometry (malformed encoding) still has no route to measure against.
	tr.SetRoute(domain.RouteBaseline{InitialDistanceMeters: 1110, InitialDurationSeconds: 300}, nil)
	if _, _, err := tr.Evaluate(domain.Coordinate{Lng: 0.005}); !errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}

	if _, _, err := tr.Evaluate(domain.Coordinate{Lat: math.NaN()}); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}
