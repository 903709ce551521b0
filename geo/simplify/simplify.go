package simplify

import (
	"github.com/paulmach/orb"
	orbsimplify "github.com/paulmach/orb/simplify"
)

// Simplify reduces ls with Douglas-Peucker at the given tolerance,
// in the planar (degree) space of the coordinates.
// Topology is not preserved: the result may self-intersect.
// The input is never modified; lines of 0 or 1 point and
// non-positive tolerances return a copy of the input.
func Simplify(ls orb.LineString, tolerance float64) orb.LineString {
	if len(ls) < 2 || tolerance <= 0 {
		return ls.Clone()
	}
	// orb simplifies in place.
	simplified := orbsimplify.DouglasPeucker(tolerance).Simplify(ls.Clone())
	out, ok := simplified.(orb.LineString)
	if !ok {
		return orb.LineString{}
	}
	return out
}

// Empty reports whether a simplified line has no points left,
// in which case callers treat the geometry as absent.
func Empty(ls orb.LineString) bool {
	return len(ls) == 0
}
