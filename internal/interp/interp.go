// Package interp provides the interpolation helpers shared by the
// resolver and the renderers. All functions are pure.
package interp

import "math"

// Lerp linearly interpolates between a and b by t in [0, 1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// InvLerp returns where v sits between a and b as a fraction in [0, 1].
// Returns 0 when the range is empty or inverted.
func InvLerp(a, b, v float64) float64 {
	if b <= a {
		return 0
	}
	return Clamp01((v - a) / (b - a))
}

// Clamp01 clamps v to the closed interval [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SmoothStep is the cubic Hermite ease between 0 and 1.
func SmoothStep(t float64) float64 {
	t = Clamp01(t)
	return t * t * (3 - 2*t)
}

// DistanceWeight maps the distance between a slot and the continuous
// index to a [0, 1] weight. Weight is 1 at distance 0 and falls off
// linearly to 0 at falloff slots away.
func DistanceWeight(distance, falloff float64) float64 {
	if falloff <= 0 {
		return 0
	}
	d := math.Abs(distance)
	if d >= falloff {
		return 0
	}
	return 1 - d/falloff
}
