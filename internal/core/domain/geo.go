package domain

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by every distance in the service.
	EarthRadiusMeters = 6371000.0

	metersPerDegree = EarthRadiusMeters * math.Pi / 180
)

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b Coordinate) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*sinLng*sinLng
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// SegmentDistanceMeters returns the distance from p to the segment a→b and the
// clamped fraction t ∈ [0,1] of the closest point along the segment.
//
// The segment is projected onto a local plane (equirectangular, scaled by the
// cosine of the segment's mean latitude). The deviation and reliability
// thresholds were tuned against this approximation; do not swap in a geodesic.
func SegmentDistanceMeters(p, a, b Coordinate) (float64, float64) {
	cosLat := math.Cos(toRadians((a.Lat + b.Lat) / 2))

	bx := (b.Lng - a.Lng) * cosLat * metersPerDegree
	by := (b.Lat - a.Lat) * metersPerDegree
	px := (p.Lng - a.Lng) * cosLat * metersPerDegree
	py := (p.Lat - a.Lat) * metersPerDegree

	t := 0.0
	if denom := bx*bx + by*by; denom > 0 {
		t = (px*bx + py*by) / denom
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	return math.Hypot(px-t*bx, py-t*by), t
}

// PathProjection is the closest point of a path to a position.
type PathProjection struct {
	SegmentIndex   int
	Fraction       float64
	Point          Coordinate
	DistanceMeters float64
}

// ProjectOntoPath finds the closest point of path to p. ok is false when p is
// invalid or the path is empty.
//
// DistanceMeters is the planar distance from p to its projection on the
// nearest segment, not the distance to the nearest vertex. The unreliable-fix
// guard compares against this value, so a fix beside the middle of a long
// segment is trusted even when every vertex is far away.
func ProjectOntoPath(p Coordinate, path []Coordinate) (PathProjection, bool) {
	if !p.Valid() || len(path) == 0 {
		return PathProjection{}, false
	}
	if len(path) == 1 {
		return PathProjection{Point: path[0], DistanceMeters: HaversineMeters(p, path[0])}, true
	}

	best := PathProjection{DistanceMeters: math.Inf(1)}
	for i := 0; i < len(path)-1; i++ {
		d, t := SegmentDistanceMeters(p, path[i], path[i+1])
		if d < best.DistanceMeters {
			best = PathProjection{SegmentIndex: i, Fraction: t, DistanceMeters: d}
		}
	}

	a, b := path[best.SegmentIndex], path[best.SegmentIndex+1]
	best.Point = Coordinate{
		Lat: a.Lat + best.Fraction*(b.Lat-a.Lat),
		Lng: a.Lng + best.Fraction*(b.Lng-a.Lng),
	}
	return best, true
}

// DistanceToPath returns the minimum distance from p to any segment of path.
// The scan stops as soon as a segment closer than stopBelow is found; pass 0
// to scan the whole path.
func DistanceToPath(p Coordinate, path []Coordinate, stopBelow float64) (float64, bool) {
	if !p.Valid() || len(path) == 0 {
		return 0, false
	}
	if len(path) == 1 {
		return HaversineMeters(p, path[0]), true
	}

	minDist := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		d, _ := SegmentDistanceMeters(p, path[i], path[i+1])
		if d < minDist {
			minDist = d
			if minDist < stopBelow {
				break
			}
		}
	}
	return minDist, true
}

// RemainingMeters sums the great-circle length from the projected point to the end of path.
func RemainingMeters(proj PathProjection, path []Coordinate) float64 {
	if len(path) < 2 {
		return 0
	}
	remaining := HaversineMeters(proj.Point, path[proj.SegmentIndex+1])
	for i := proj.SegmentIndex + 1; i < len(path)-1; i++ {
		remaining += HaversineMeters(path[i], path[i+1])
	}
	return remaining
}

// PathLengthMeters returns the great-circle length of the whole path.
func PathLengthMeters(path []Coordinate) float64 {
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		total += HaversineMeters(path[i], path[i+1])
	}
	return total
}
