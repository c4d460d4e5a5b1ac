// Package telemetry defines the snapshot value produced at each sampling
// instant and its wire encoding.
//
// A Snapshot is created once per sampling tick and never mutated
// afterward; the next tick produces a fresh value. The wire format is
// protocol-locked (field names, nesting, and numeric precision) because
// downstream consumers parse it positionally-agnostic but name-strict.
package telemetry

// Vector3 is a 3D position, acceleration, or angular velocity.
type Vector3 struct {
	X, Y, Z float64
}

// Quaternion is a rotation. Producers must keep it unit-norm; the W
// component is conventionally derived from X/Y/Z at construction time.
type Quaternion struct {
	X, Y, Z, W float64
}

// Norm2 returns x²+y²+z²+w², which is 1 for a unit quaternion.
func (q Quaternion) Norm2() float64 {
	return q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
}

// EyeSample is one eye-tracker reading. Gaze coordinates are normalized
// to [0,1]; pupil diameter is in millimeters.
type EyeSample struct {
	X             float64
	Y             float64
	PupilDiameter float64
	IsBlinking    bool
}

// HandSample is one hand-tracker reading. Position is in meters, grip
// strength in [0,1].
type HandSample struct {
	X, Y, Z      float64
	Orientation  Quaternion
	GripStrength float64
	IsTracking   bool
}

// Snapshot is one immutable telemetry record.
type Snapshot struct {
	TimestampUS uint64
	FrameID     uint32

	HeadPosition        Vector3
	HeadOrientation     Quaternion
	HeadAcceleration    Vector3
	HeadAngularVelocity Vector3

	LeftEye  EyeSample
	RightEye EyeSample

	LeftHand  HandSample
	RightHand HandSample

	CPUUsage     float64 // percent
	GPUUsage     float64 // percent
	Temperature  float64 // °C
	BatteryLevel uint8   // 0-100
	IsConnected  bool
}
