package sim

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestSine(t *testing.T) {
	tests := []struct {
		name          string
		at, freq, amp float64
		want          float64
	}{
		{"zero crossing at origin", 0, 1, 2, 0},
		{"quarter period peaks", 0.25, 1, 2, 2},
		{"half period crosses zero", 0.5, 1, 2, 0},
		{"three quarters troughs", 0.75, 1, 2, -2},
		{"frequency scales period", 0.125, 2, 1, 1},
		{"zero amplitude is flat", 0.37, 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sine(tt.at, tt.freq, tt.amp); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Sine(%v, %v, %v) = %v, want %v", tt.at, tt.freq, tt.amp, got, tt.want)
			}
		})
	}
}

func TestNoiseStaysInBound(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 10000 {
		if v := Noise(rng, 0.05); v < -0.05 || v > 0.05 {
			t.Fatalf("Noise() = %v outside [-0.05, 0.05]", v)
		}
	}
}

func TestRandomWalkPersistsState(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	var last float64
	prev := 0.0
	for i := range 10000 {
		v := RandomWalk(rng, &last, 0.01)
		if v != last {
			t.Fatalf("step %d: return %v disagrees with cell %v", i, v, last)
		}
		if d := math.Abs(v - prev); d > 0.01 {
			t.Fatalf("step %d: jumped by %v, want ≤ maxStep", i, d)
		}
		prev = v
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-3, 0, 1, 0},
		{7, 0, 1, 1},
		{0, 0, 1, 0},
		{1, 0, 1, 1},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}
