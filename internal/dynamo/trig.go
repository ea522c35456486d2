package dynamo

import "math"

// Wrap maps x into the half-open interval [lo, hi).
func Wrap(x, lo, hi float64) float64 {
	span := hi - lo
	if span <= 0 {
		return lo
	}
	x = math.Mod(x-lo, span)
	if x < 0 {
		x += span
	}
	return x + lo
}

// WrapAngle maps an angle into [-π, π).
func WrapAngle(x float64) float64 {
	return Wrap(x, -math.Pi, math.Pi)
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
