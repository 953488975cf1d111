package domain

import (
	"math"
	"testing"
)

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 m"},
		{555.4, "555 m"},
		{999.4, "999 m"},
		{999.6, "1.0 km"},
		{1000, "1.0 km"},
		{12345, "12.3 km"},
		{-5, "0 m"},
		{math.NaN(), "0 m"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.in); got != tt.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 min"},
		{1, "1 min"},
		{150, "3 min"},
		{3540, "59 min"},
		{3541, "1 h 0 min"},
		{3600, "1 h 0 min"},
		{5400, "1 h 30 min"},
		{math.NaN(), "0 min"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRouteBaseline_Initial(t *testing.T) {
	r := Route{EntityID: "job-1", InitialDistanceMeters: 1110, InitialDurationSeconds: 300, PhaseTag: "to_pickup"}
	got := r.Baseline().Initial()
	want := RouteProgressState{RemainingDistanceMeters: 1110, RemainingTimeSeconds: 300}
	if got != want {
		t.Fatalf("Initial() = %+v, want %+v", got, want)
	}
}
