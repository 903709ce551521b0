// Package polyline implements the Google encoded polyline algorithm
// for orb line strings.
// https://developers.google.com/maps/documentation/utilities/polylinealgorithm
//
// Points are orb (lon, lat) pairs in memory. On the wire each pair is
// written latitude first, as Strava and Google do.
package polyline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultPrecision is the number of decimal places Strava summary polylines use.
const DefaultPrecision = 5

// ErrFormat is matched by every FormatError with errors.Is.
var ErrFormat = errors.New("polyline: malformed input")

// FormatError describes where and why a polyline failed to decode.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("polyline: %s at offset %d", e.Reason, e.Offset)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func factor(precision int) float64 {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return math.Pow(10, float64(precision))
}

// Encode encodes the line at the given decimal precision.
// An empty line encodes to the empty string.
func Encode(ls orb.LineString, precision int) string {
	if len(ls) == 0 {
		return ""
	}
	f := factor(precision)
	var sb strings.Builder
	sb.Grow(len(ls) * 8)
	var prevLat, prevLon int64
	for _, pt := range ls {
		lat := int64(math.Round(pt.Lat() * f))
		lon := int64(math.Round(pt.Lon() * f))
		writeValue(&sb, lat-prevLat)
		writeValue(&sb, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return sb.String()
}

func writeValue(sb *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}

// Decode decodes s at the given decimal precision.
// The empty string decodes to an empty line.
func Decode(s string, precision int) (orb.LineString, error) {
	ls := orb.LineString{}
	if s == "" {
		return ls, nil
	}
	f := factor(precision)
	var lat, lon int64
	i := 0
	for i < len(s) {
		dlat, next, err := readValue(s, i)
		if err != nil {
			return nil, err
		}
		if next >= len(s) {
			return nil, &FormatError{Offset: next, Reason: "latitude without longitude"}
		}
		dlon, next, err := readValue(s, next)
		if err != nil {
			return nil, err
		}
		i = next
		lat += dlat
		lon += dlon
		ls = append(ls, orb.Point{float64(lon) / f, float64(lat) / f})
	}
	return ls, nil
}

func readValue(s string, i int) (int64, int, error) {
	var u uint64
	shift := uint(0)
	for {
		if i >= len(s) {
			return 0, i, &FormatError{Offset: i, Reason: "unterminated value"}
		}
		c := s[i]
		if c < 63 || c > 126 {
			return 0, i, &FormatError{Offset: i, Reason: fmt.Sprintf("invalid byte %q", c)}
		}
		if shift > 60 {
			return 0, i, &FormatError{Offset: i, Reason: "value overflows 64 bits"}
		}
		b := uint64(c - 63)
		i++
		u |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	v := int64(u >> 1)
	if u&1 != 0 {
		v = ^v
	}
	return v, i, nil
}
