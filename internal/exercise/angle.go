// Package exercise implements joint-angle repetition counting.
package exercise

import (
	"math"

	"github.com/ayusman/squatcoach/internal/pose"
)

// Angle returns the interior angle ABC in degrees, with b as the vertex.
// The result lies in [0, 180]. When either limb vector has zero length the
// angle cannot be determined and NaN is returned.
func Angle(a, b, c pose.Point) float64 {
	ba := a.Sub(b)
	bc := c.Sub(b)
	if isInf(ba) || isInf(bc) {
		// The angle is scale invariant, so halve everything to keep the
		// differences of huge coordinates finite.
		ba = a.Scale(0.5).Sub(b.Scale(0.5))
		bc = c.Scale(0.5).Sub(b.Scale(0.5))
	}

	u, okU := unit(ba)
	v, okV := unit(bc)
	if !okU || !okV {
		return math.NaN()
	}

	// Rounding can push the cosine fractionally outside [-1, 1].
	cosine := math.Max(-1, math.Min(1, u.Dot(v)))

	return math.Acos(cosine) * 180 / math.Pi
}

// unit normalizes p before any products are taken, so tiny or huge
// vectors neither underflow nor overflow.
func unit(p pose.Point) (pose.Point, bool) {
	n := p.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return pose.Point{}, false
	}
	return pose.Point{X: p.X / n, Y: p.Y / n}, true
}

func isInf(p pose.Point) bool {
	return math.IsInf(p.X, 0) || math.IsInf(p.Y, 0)
}
