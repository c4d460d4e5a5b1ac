package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/visorlabs/headsetd/internal/telemetry"
)

// Signal frequencies are distinct per field so that no two channels
// produce correlated artifacts a consumer might mistake for real motion
// coupling.
const (
	// Head position bob/sway, Hz.
	headPosXFreq = 0.5
	headPosYFreq = 0.3
	headPosZFreq = 0.4

	// Head orientation drift, Hz.
	headOriXFreq = 0.2
	headOriYFreq = 0.15
	headOriZFreq = 0.1

	// Eye saccade sweep, Hz.
	gazeXFreq = 2.0
	gazeYFreq = 1.5

	restingHeadHeight = 1.7 // meters
	restingPupil      = 3.5 // millimeters

	// Blink window: the last 100 ms of every 3 s cycle.
	blinkCycle  = 3.0
	blinkOnset  = 2.9
	blinkWindow = blinkCycle - blinkOnset

	// Connectivity degrades after this much elapsed time; beyond it the
	// link drops for the last 2 s of every 60 s window.
	dropoutAfter  = 300.0
	dropoutCycle  = 60.0
	dropoutOnline = 58.0

	batteryDrainPerSec = 0.1 // percent
)

// Synthesizer produces telemetry snapshots. It owns the seeded RNG and
// the per-field random-walk state, so two synthesizers with the same
// seed produce identical streams. Not safe for concurrent use; the tick
// engine calls it from a single goroutine.
type Synthesizer struct {
	rng *rand.Rand
	now func() time.Time

	// Random-walk cells for the angular velocity channels. These persist
	// across Synthesize calls to get walk semantics.
	walkAngX float64
	walkAngY float64
	walkAngZ float64

	calibrated bool
}

// New creates a Synthesizer with a deterministic RNG seeded from seed.
func New(seed uint64) *Synthesizer {
	return &Synthesizer{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// SetClock overrides the wall-clock source used for timestamps. Tests
// use this to produce fully reproducible snapshots.
func (s *Synthesizer) SetClock(now func() time.Time) {
	s.now = now
}

// SelfTest verifies the signal model produces sane output before the
// engine leaves the Init state: a probe snapshot must carry unit-norm
// quaternions and in-range scalar channels.
func (s *Synthesizer) SelfTest() error {
	probe := s.Synthesize(0, 0)
	for _, q := range []telemetry.Quaternion{
		probe.HeadOrientation,
		probe.LeftHand.Orientation,
		probe.RightHand.Orientation,
	} {
		if math.Abs(q.Norm2()-1) > 1e-4 {
			return fmt.Errorf("sensor self-test: quaternion norm² %v out of tolerance", q.Norm2())
		}
	}
	if probe.LeftHand.GripStrength < 0 || probe.LeftHand.GripStrength > 1 {
		return fmt.Errorf("sensor self-test: grip strength %v out of range", probe.LeftHand.GripStrength)
	}
	return nil
}

// Calibrate settles the random-walk channels by advancing them through a
// burn-in so the first real samples don't start from the zero rest
// state. Idempotent.
func (s *Synthesizer) Calibrate() {
	if s.calibrated {
		return
	}
	for range 100 {
		RandomWalk(s.rng, &s.walkAngX, 0.02)
		RandomWalk(s.rng, &s.walkAngY, 0.02)
		RandomWalk(s.rng, &s.walkAngZ, 0.01)
	}
	s.walkAngX = clamp(s.walkAngX, -0.5, 0.5)
	s.walkAngY = clamp(s.walkAngY, -0.5, 0.5)
	s.walkAngZ = clamp(s.walkAngZ, -0.5, 0.5)
	s.calibrated = true
}

// Synthesize produces the snapshot for the given elapsed simulated time
// (seconds) and frame sequence number.
func (s *Synthesizer) Synthesize(elapsed float64, frame uint32) telemetry.Snapshot {
	snap := telemetry.Snapshot{
		TimestampUS: uint64(s.now().UnixMicro()),
		FrameID:     frame,
	}

	// Head bobs gently around a standing rest pose.
	snap.HeadPosition = telemetry.Vector3{
		X: Sine(elapsed, headPosXFreq, 0.1),
		Y: restingHeadHeight + Sine(elapsed, headPosYFreq, 0.02),
		Z: 0.1 * math.Cos(2*math.Pi*headPosZFreq*elapsed),
	}
	snap.HeadOrientation = unitQuat(
		Sine(elapsed, headOriXFreq, 0.1),
		Sine(elapsed, headOriYFreq, 0.2),
		Sine(elapsed, headOriZFreq, 0.05),
	)

	// Acceleration rides a slow sway plus independent sensor noise;
	// angular velocity is a bounded random walk so successive samples
	// stay continuous.
	snap.HeadAcceleration = telemetry.Vector3{
		X: Sine(elapsed, 0.9, 0.3) + Noise(s.rng, 0.05),
		Y: Sine(elapsed, 1.1, 0.2) + Noise(s.rng, 0.05),
		Z: Sine(elapsed, 0.7, 0.25) + Noise(s.rng, 0.05),
	}
	snap.HeadAngularVelocity = telemetry.Vector3{
		X: clamp(RandomWalk(s.rng, &s.walkAngX, 0.02), -0.5, 0.5),
		Y: clamp(RandomWalk(s.rng, &s.walkAngY, 0.02), -0.5, 0.5),
		Z: clamp(RandomWalk(s.rng, &s.walkAngZ, 0.01), -0.5, 0.5),
	}
	s.walkAngX = snap.HeadAngularVelocity.X
	s.walkAngY = snap.HeadAngularVelocity.Y
	s.walkAngZ = snap.HeadAngularVelocity.Z

	// Both eyes blink together during the same deterministic window; the
	// right eye sweeps at slightly offset frequencies so the gaze traces
	// differ without decorrelating entirely.
	blinking := math.Mod(elapsed, blinkCycle) > blinkOnset
	snap.LeftEye = telemetry.EyeSample{
		X:             0.5 + Sine(elapsed, gazeXFreq, 0.1),
		Y:             0.5 + 0.1*math.Cos(2*math.Pi*gazeYFreq*elapsed),
		PupilDiameter: restingPupil + Sine(elapsed, 0.5, 0.5),
		IsBlinking:    blinking,
	}
	snap.RightEye = telemetry.EyeSample{
		X:             0.5 + Sine(elapsed, gazeXFreq+0.1, 0.1),
		Y:             0.5 + 0.1*math.Cos(2*math.Pi*(gazeYFreq+0.1)*elapsed),
		PupilDiameter: restingPupil + Sine(elapsed, 0.51, 0.5),
		IsBlinking:    blinking,
	}

	snap.LeftHand = telemetry.HandSample{
		X:            0.3 + Sine(elapsed, 1.0/(2*math.Pi), 0.2),
		Y:            1.2 + 0.3*math.Cos(0.7*elapsed),
		Z:            0.1 + Sine(elapsed, 1.2/(2*math.Pi), 0.15),
		Orientation:  unitQuat(Sine(elapsed, 0.25, 0.15), Sine(elapsed, 0.35, 0.1), Sine(elapsed, 0.45, 0.1)),
		GripStrength: clamp(0.5+Sine(elapsed, 0.4/(2*math.Pi), 0.3), 0, 1),
		IsTracking:   true,
	}
	snap.RightHand = telemetry.HandSample{
		X:            -0.3 + Sine(elapsed, 1.1/(2*math.Pi), 0.2),
		Y:            1.2 + 0.3*math.Cos(0.7*elapsed),
		Z:            0.1 + Sine(elapsed, 1.2/(2*math.Pi), 0.15),
		Orientation:  unitQuat(Sine(elapsed, 0.3, 0.15), Sine(elapsed, 0.4, 0.1), Sine(elapsed, 0.5, 0.1)),
		GripStrength: clamp(0.5+Sine(elapsed, 0.4/(2*math.Pi), 0.3), 0, 1),
		IsTracking:   true,
	}

	snap.CPUUsage = 45 + Sine(elapsed, 0.8/(2*math.Pi), 10)
	snap.GPUUsage = 60 + 15*math.Cos(0.6*elapsed)
	snap.Temperature = 35 + (snap.CPUUsage+snap.GPUUsage)*0.1
	snap.BatteryLevel = uint8(clamp(100-elapsed*batteryDrainPerSec, 0, 100))
	snap.IsConnected = elapsed < dropoutAfter || math.Mod(elapsed, dropoutCycle) < dropoutOnline

	return snap
}

// unitQuat builds a unit quaternion from independent x/y/z sinusoids,
// deriving w so |q| = 1. When the amplitudes push x²+y²+z² past 1, w
// clamps to zero instead of going NaN.
func unitQuat(x, y, z float64) telemetry.Quaternion {
	return telemetry.Quaternion{
		X: x,
		Y: y,
		Z: z,
		W: math.Sqrt(math.Max(0, 1-(x*x+y*y+z*z))),
	}
}
