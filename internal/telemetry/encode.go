package telemetry

import "strconv"

// Decimal precision of the wire format. Geometric quantities carry six
// places, percentages and temperature two. Consumers compare field
// values textually in places (golden recordings), so Encode must render
// floats with exactly these widths rather than Go's shortest-form
// default — which is why this encoder is hand-rolled instead of using
// encoding/json struct tags.
const (
	geoPrec = 6
	pctPrec = 2
)

// Encode renders a snapshot in the protocol-locked JSON wire format.
// The field names, nesting, and ordering are part of the consumer
// contract; do not reorder without versioning the payload.
func Encode(s *Snapshot) []byte {
	b := make([]byte, 0, 1024)

	b = append(b, '{')
	b = appendKey(b, "timestamp_us")
	b = strconv.AppendUint(b, s.TimestampUS, 10)
	b = append(b, ',')
	b = appendKey(b, "frame_id")
	b = strconv.AppendUint(b, uint64(s.FrameID), 10)
	b = append(b, ',')

	b = appendVec(b, "head_position", s.HeadPosition)
	b = append(b, ',')
	b = appendQuat(b, "head_orientation", s.HeadOrientation)
	b = append(b, ',')
	b = appendVec(b, "head_acceleration", s.HeadAcceleration)
	b = append(b, ',')
	b = appendVec(b, "head_angular_velocity", s.HeadAngularVelocity)
	b = append(b, ',')

	b = appendEye(b, "left_eye", s.LeftEye)
	b = append(b, ',')
	b = appendEye(b, "right_eye", s.RightEye)
	b = append(b, ',')

	b = appendHand(b, "left_hand", s.LeftHand)
	b = append(b, ',')
	b = appendHand(b, "right_hand", s.RightHand)
	b = append(b, ',')

	b = appendKey(b, "cpu_usage")
	b = appendFloat(b, s.CPUUsage, pctPrec)
	b = append(b, ',')
	b = appendKey(b, "gpu_usage")
	b = appendFloat(b, s.GPUUsage, pctPrec)
	b = append(b, ',')
	b = appendKey(b, "temperature")
	b = appendFloat(b, s.Temperature, pctPrec)
	b = append(b, ',')
	b = appendKey(b, "battery_level")
	b = strconv.AppendUint(b, uint64(s.BatteryLevel), 10)
	b = append(b, ',')
	b = appendKey(b, "is_connected")
	b = strconv.AppendBool(b, s.IsConnected)
	b = append(b, '}')

	return b
}

func appendKey(b []byte, name string) []byte {
	b = append(b, '"')
	b = append(b, name...)
	b = append(b, '"', ':')
	return b
}

func appendFloat(b []byte, v float64, prec int) []byte {
	return strconv.AppendFloat(b, v, 'f', prec, 64)
}

func appendVec(b []byte, name string, v Vector3) []byte {
	b = appendKey(b, name)
	b = append(b, '{')
	b = appendKey(b, "x")
	b = appendFloat(b, v.X, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "y")
	b = appendFloat(b, v.Y, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "z")
	b = appendFloat(b, v.Z, geoPrec)
	b = append(b, '}')
	return b
}

func appendQuat(b []byte, name string, q Quaternion) []byte {
	b = appendKey(b, name)
	b = append(b, '{')
	b = appendKey(b, "x")
	b = appendFloat(b, q.X, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "y")
	b = appendFloat(b, q.Y, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "z")
	b = appendFloat(b, q.Z, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "w")
	b = appendFloat(b, q.W, geoPrec)
	b = append(b, '}')
	return b
}

func appendEye(b []byte, name string, e EyeSample) []byte {
	b = appendKey(b, name)
	b = append(b, '{')
	b = appendKey(b, "x")
	b = appendFloat(b, e.X, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "y")
	b = appendFloat(b, e.Y, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "pupil_diameter")
	b = appendFloat(b, e.PupilDiameter, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "is_blinking")
	b = strconv.AppendBool(b, e.IsBlinking)
	b = append(b, '}')
	return b
}

func appendHand(b []byte, name string, h HandSample) []byte {
	b = appendKey(b, name)
	b = append(b, '{')
	b = appendKey(b, "x")
	b = appendFloat(b, h.X, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "y")
	b = appendFloat(b, h.Y, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "z")
	b = appendFloat(b, h.Z, geoPrec)
	b = append(b, ',')
	b = appendQuat(b, "orientation", h.Orientation)
	b = append(b, ',')
	b = appendKey(b, "grip_strength")
	b = appendFloat(b, h.GripStrength, geoPrec)
	b = append(b, ',')
	b = appendKey(b, "is_tracking")
	b = strconv.AppendBool(b, h.IsTracking)
	b = append(b, '}')
	return b
}
