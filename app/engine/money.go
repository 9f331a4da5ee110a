package engine

import "math"

// roundHalfUp rounds to the nearest currency unit, halves away from zero.
// Every money computation in the engine goes through this one helper so the
// rounding rule cannot drift between modules.
func roundHalfUp(x float64) int {
	if x < 0 {
		return -int(math.Floor(-x + 0.5))
	}
	return int(math.Floor(x + 0.5))
}
