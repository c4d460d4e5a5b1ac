// Package sim synthesizes head/eye/hand sensor readings as deterministic
// functions of elapsed simulated time. There is no hardware behind it;
// every field is a closed-form signal, optionally roughened by a seeded
// noise or random-walk primitive.
package sim

import (
	"math"
	"math/rand/v2"
)

// Sine returns a sinusoid sample: amplitude * sin(2π · freq · t).
func Sine(t, freq, amplitude float64) float64 {
	return amplitude * math.Sin(2*math.Pi*freq*t)
}

// Noise returns a uniform sample in [-bound, bound]. Each call is
// independent; use RandomWalk when successive values must be continuous.
func Noise(rng *rand.Rand, bound float64) float64 {
	return (rng.Float64()*2 - 1) * bound
}

// RandomWalk perturbs *last by a uniform step in [-maxStep, maxStep] and
// returns the new value. The caller owns the last-value cell and must
// persist it across invocations; without that the walk degenerates into
// independent jumps.
func RandomWalk(rng *rand.Rand, last *float64, maxStep float64) float64 {
	*last += (rng.Float64()*2 - 1) * maxStep
	return *last
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
