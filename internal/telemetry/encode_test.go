package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		TimestampUS:         1767225600123456,
		FrameID:             42,
		HeadPosition:        Vector3{X: 0.05, Y: 1.71, Z: -0.099878},
		HeadOrientation:     Quaternion{X: 0.1, Y: 0.2, Z: 0.05, W: 0.973396},
		HeadAcceleration:    Vector3{X: 0.31, Y: -0.18, Z: 0.02},
		HeadAngularVelocity: Vector3{X: -0.012, Y: 0.4, Z: -0.003},
		LeftEye:             EyeSample{X: 0.55, Y: 0.45, PupilDiameter: 3.6, IsBlinking: false},
		RightEye:            EyeSample{X: 0.53, Y: 0.47, PupilDiameter: 3.62, IsBlinking: false},
		LeftHand:            HandSample{X: 0.3, Y: 1.2, Z: 0.1, Orientation: Quaternion{W: 1}, GripStrength: 0.5, IsTracking: true},
		RightHand:           HandSample{X: -0.3, Y: 1.2, Z: 0.1, Orientation: Quaternion{W: 1}, GripStrength: 0.5, IsTracking: true},
		CPUUsage:            47.25,
		GPUUsage:            61.5,
		Temperature:         45.88,
		BatteryLevel:        97,
		IsConnected:         true,
	}
}

func TestEncodeIsValidJSON(t *testing.T) {
	payload := Encode(sampleSnapshot())
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("Encode produced invalid JSON: %v\n%s", err, payload)
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	payload := string(Encode(sampleSnapshot()))

	// Some consumers parse positionally; the top-level ordering is part
	// of the contract.
	order := []string{
		`"timestamp_us"`, `"frame_id"`,
		`"head_position"`, `"head_orientation"`, `"head_acceleration"`, `"head_angular_velocity"`,
		`"left_eye"`, `"right_eye"`,
		`"left_hand"`, `"right_hand"`,
		`"cpu_usage"`, `"gpu_usage"`, `"temperature"`, `"battery_level"`, `"is_connected"`,
	}
	pos := -1
	for _, key := range order {
		idx := strings.Index(payload, key)
		if idx < 0 {
			t.Fatalf("key %s missing from payload:\n%s", key, payload)
		}
		if idx < pos {
			t.Errorf("key %s appears out of order", key)
		}
		pos = idx
	}
}

func TestEncodePrecision(t *testing.T) {
	payload := string(Encode(sampleSnapshot()))

	for _, fragment := range []string{
		`"head_position":{"x":0.050000,"y":1.710000,"z":-0.099878}`,
		`"head_orientation":{"x":0.100000,"y":0.200000,"z":0.050000,"w":0.973396}`,
		`"left_eye":{"x":0.550000,"y":0.450000,"pupil_diameter":3.600000,"is_blinking":false}`,
		`"grip_strength":0.500000,"is_tracking":true`,
		`"cpu_usage":47.25,"gpu_usage":61.50,"temperature":45.88`,
		`"battery_level":97,"is_connected":true`,
		`"timestamp_us":1767225600123456,"frame_id":42`,
	} {
		if !strings.Contains(payload, fragment) {
			t.Errorf("payload missing %s\npayload: %s", fragment, payload)
		}
	}
}

func TestEncodeRoundsPercentages(t *testing.T) {
	s := sampleSnapshot()
	s.Temperature = 45.875
	s.CPUUsage = 33.333333

	payload := string(Encode(s))
	if !strings.Contains(payload, `"temperature":45.88`) {
		t.Errorf("temperature not rounded to two places: %s", payload)
	}
	if !strings.Contains(payload, `"cpu_usage":33.33`) {
		t.Errorf("cpu_usage not rounded to two places: %s", payload)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	want := sampleSnapshot()
	got, err := Decode(Encode(want))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip changed the snapshot:\nsent: %+v\ngot:  %+v", want, got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte(`{"timestamp_us": "not a number"}`)); err == nil {
		t.Error("Decode() accepted a malformed payload")
	}
	if _, err := Decode([]byte(`not json at all`)); err == nil {
		t.Error("Decode() accepted non-JSON input")
	}
}

func TestConsolePublishesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	if !c.Ready() {
		t.Fatal("Ready() = false for a console sink")
	}

	snap := sampleSnapshot()
	for range 3 {
		if err := c.Publish(context.Background(), snap); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, line := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}
