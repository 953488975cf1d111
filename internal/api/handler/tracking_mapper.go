package handler

import (
	"time"

	"github.com/99minutos/job-tracking/internal/core/ports"
)

// --- Request → Service input ---

func toPositionInput(r positionRequest) ports.PositionReportInput {
	in := ports.PositionReportInput{
		EntityID:   r.EntityID,
		Address:    r.Address,
		ObservedAt: r.ObservedAt,
	}
	if r.Lat != nil {
		in.Lat = *r.Lat
	}
	if r.Lng != nil {
		in.Lng = *r.Lng
	}
	return in
}

func toRouteInput(r routeRequest) ports.RouteInput {
	return ports.RouteInput{
		EncodedPath:            r.EncodedPath,
		InitialDistanceMeters:  r.InitialDistanceMeters,
		InitialDurationSeconds: r.InitialDurationSeconds,
		PhaseTag:               r.PhaseTag,
	}
}

// --- Service output → Response ---

func toTrackingResponse(s *ports.TrackingSnapshot) trackingResponse {
	self := "/v1/jobs/" + s.EntityID
	resp := trackingResponse{
		EntityID:   s.EntityID,
		PhaseTag:   s.PhaseTag,
		HasRoute:   s.HasRoute,
		AttachedAt: s.AttachedAt,
		Progress: progressResponse{
			RemainingDistanceMeters: s.Progress.RemainingDistanceMeters,
			RemainingTimeSeconds:    s.Progress.RemainingTimeSeconds,
			ProgressPercent:         s.Progress.ProgressPercent,
			RemainingDistance:       s.Progress.RemainingDistance,
			RemainingTime:           s.Progress.RemainingTime,
		},
		Deviation: deviationResponse{
			Status:          string(s.Deviation.Status),
			PendingSince:    optionalTime(s.Deviation.PendingSince),
			LastTriggeredAt: optionalTime(s.Deviation.LastTriggeredAt),
		},
		Links: trackingLinks{
			Self:    self + "/progress",
			Route:   self + "/route",
			Refresh: self + "/refresh",
		},
	}
	if d := s.Deviation.DistanceMeters; d >= 0 {
		resp.Deviation.DistanceMeters = &d
	}
	if s.Position != nil {
		resp.Position = &positionResponse{
			Lat:        s.Position.Coordinate.Lat,
			Lng:        s.Position.Coordinate.Lng,
			Address:    s.Position.Address,
			ObservedAt: s.Position.ObservedAt,
		}
	}
	return resp
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
