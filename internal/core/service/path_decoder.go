package service

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

const (
	pathPrecision = 1e5
	chunkOffset   = 63
	chunkMask     = 0x1f
	chunkContinue = 0x20
	maxChunkShift = 30
)

// DecodePath decodes a polyline-style encoded path: for every point a
// zig-zag varint delta for latitude then one for longitude, at 1e-5 degree
// precision. Any malformed or truncated input yields an empty path and an
// error wrapping domain.ErrDecode; a partial path is never returned.
func DecodePath(encoded string) ([]domain.Coordinate, error) {
	if encoded == "" {
		return []domain.Coordinate{}, nil
	}

	path := make([]domain.Coordinate, 0, len(encoded)/4)
	var lat, lng int64
	pos := 0
	for pos < len(encoded) {
		dLat, next, err := decodeValue(encoded, pos)
		if err != nil {
			return []domain.Coordinate{}, err
		}
		if next >= len(encoded) {
			return []domain.Coordinate{}, fmt.Errorf("%w: point %d truncated after latitude", domain.ErrDecode, len(path))
		}
		dLng, next, err := decodeValue(encoded, next)
		if err != nil {
			return []domain.Coordinate{}, err
		}
		pos = next

		lat += dLat
		lng += dLng
		c := domain.Coordinate{Lat: float64(lat) / pathPrecision, Lng: float64(lng) / pathPrecision}
		if !c.Valid() {
			return []domain.Coordinate{}, fmt.Errorf("%w: point %d out of range (%v,%v)", domain.ErrDecode, len(path), c.Lat, c.Lng)
		}
		path = append(path, c)
	}
	return path, nil
}

// decodeValue reads one signed varint starting at pos and returns it with the
// index of the first unread byte.
func decodeValue(encoded string, pos int) (int64, int, error) {
	var result int64
	shift := uint(0)
	for {
		if pos >= len(encoded) {
			return 0, pos, fmt.Errorf("%w: value truncated at offset %d", domain.ErrDecode, pos)
		}
		b := int64(encoded[pos]) - chunkOffset
		if b < 0 || b > 0x3f {
			return 0, pos, fmt.Errorf("%w: invalid character %q at offset %d", domain.ErrDecode, encoded[pos], pos)
		}
		pos++
		result |= (b & chunkMask) << shift
		if b < chunkContinue {
			break
		}
		shift += 5
		if shift > maxChunkShift {
			return 0, pos, fmt.Errorf("%w: value overflow at offset %d", domain.ErrDecode, pos)
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// EncodePath is the inverse of DecodePath. Coordinates are rounded to 1e-5 degrees.
func EncodePath(path []domain.Coordinate) string {
	var sb strings.Builder
	var prevLat, prevLng int64
	for _, c := range path {
		lat := int64(math.Round(c.Lat * pathPrecision))
		lng := int64(math.Round(c.Lng * pathPrecision))
		encodeValue(&sb, lat-prevLat)
		encodeValue(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= chunkContinue {
		sb.WriteByte(byte((chunkContinue | (u & chunkMask)) + chunkOffset))
		u >>= 5
	}
	sb.WriteByte(byte(u + chunkOffset))
}

type decodedEntry struct {
	path []domain.Coordinate
	err  error
}

// PathDecoder caches decoded paths keyed by the exact encoding. Each tracked
// entity owns its own decoder; nothing is shared between entities.
type PathDecoder struct {
	mu    sync.Mutex
	cache map[string]decodedEntry
}

// NewPathDecoder returns an empty decoder cache.
func NewPathDecoder() *PathDecoder {
	return &PathDecoder{cache: make(map[string]decodedEntry)}
}

// Decode returns the cached result for encoded, parsing it on first use.
// Failures are cached as well so a malformed encoding is parsed once.
// The returned slice is shared and must not be modified.
func (d *PathDecoder) Decode(encoded string) ([]domain.Coordinate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.cache[encoded]; ok {
		return e.path, e.err
	}
	path, err := DecodePath(encoded)
	d.cache[encoded] = decodedEntry{path: path, err: err}
	return path, err
}

// Reset drops every cached entry.
func (d *PathDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]decodedEntry)
}

// Len returns the number of cached encodings.
func (d *PathDecoder) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}
