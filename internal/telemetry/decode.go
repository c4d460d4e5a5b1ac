package telemetry

import (
	"encoding/json"
	"fmt"
)

// wire mirrors the JSON payload for decoding. It exists so that the
// consumer tooling and tests can parse payloads without depending on
// the encoder's field ordering.
type wire struct {
	TimestampUS uint64   `json:"timestamp_us"`
	FrameID     uint32   `json:"frame_id"`
	HeadPos     wireVec  `json:"head_position"`
	HeadOri     wireQuat `json:"head_orientation"`
	HeadAcc     wireVec  `json:"head_acceleration"`
	HeadAngVel  wireVec  `json:"head_angular_velocity"`
	LeftEye     wireEye  `json:"left_eye"`
	RightEye    wireEye  `json:"right_eye"`
	LeftHand    wireHand `json:"left_hand"`
	RightHand   wireHand `json:"right_hand"`
	CPUUsage    float64  `json:"cpu_usage"`
	GPUUsage    float64  `json:"gpu_usage"`
	Temperature float64  `json:"temperature"`
	Battery     uint8    `json:"battery_level"`
	IsConnected bool     `json:"is_connected"`
}

type wireVec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type wireQuat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type wireEye struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	PupilDiameter float64 `json:"pupil_diameter"`
	IsBlinking    bool    `json:"is_blinking"`
}

type wireHand struct {
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Z            float64  `json:"z"`
	Orientation  wireQuat `json:"orientation"`
	GripStrength float64  `json:"grip_strength"`
	IsTracking   bool     `json:"is_tracking"`
}

// Decode parses a wire payload back into a Snapshot. Precision lost to
// the fixed-decimal rendering is not recovered.
func Decode(payload []byte) (*Snapshot, error) {
	var w wire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("decode telemetry payload: %w", err)
	}

	return &Snapshot{
		TimestampUS:         w.TimestampUS,
		FrameID:             w.FrameID,
		HeadPosition:        Vector3{w.HeadPos.X, w.HeadPos.Y, w.HeadPos.Z},
		HeadOrientation:     Quaternion{w.HeadOri.X, w.HeadOri.Y, w.HeadOri.Z, w.HeadOri.W},
		HeadAcceleration:    Vector3{w.HeadAcc.X, w.HeadAcc.Y, w.HeadAcc.Z},
		HeadAngularVelocity: Vector3{w.HeadAngVel.X, w.HeadAngVel.Y, w.HeadAngVel.Z},
		LeftEye:             EyeSample{w.LeftEye.X, w.LeftEye.Y, w.LeftEye.PupilDiameter, w.LeftEye.IsBlinking},
		RightEye:            EyeSample{w.RightEye.X, w.RightEye.Y, w.RightEye.PupilDiameter, w.RightEye.IsBlinking},
		LeftHand:            decodeHand(w.LeftHand),
		RightHand:           decodeHand(w.RightHand),
		CPUUsage:            w.CPUUsage,
		GPUUsage:            w.GPUUsage,
		Temperature:         w.Temperature,
		BatteryLevel:        w.Battery,
		IsConnected:         w.IsConnected,
	}, nil
}

func decodeHand(h wireHand) HandSample {
	return HandSample{
		X:            h.X,
		Y:            h.Y,
		Z:            h.Z,
		Orientation:  Quaternion{h.Orientation.X, h.Orientation.Y, h.Orientation.Z, h.Orientation.W},
		GripStrength: h.GripStrength,
		IsTracking:   h.IsTracking,
	}
}
