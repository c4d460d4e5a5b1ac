package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visorlabs/headsetd/internal/engine"
)

type fakeSource struct {
	status engine.Status
}

func (f *fakeSource) Status() engine.Status { return f.status }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMux(t *testing.T, source StatusSource, hub *Hub) *httptest.Server {
	t.Helper()
	s := NewServer("", 0, source, hub, quietLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	if hub != nil {
		mux.HandleFunc("GET /stream", hub.handleStream)
	}

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestStatusEndpoint(t *testing.T) {
	source := &fakeSource{status: engine.Status{
		InstanceID:      "rig-7",
		State:           "tracking",
		UptimeTicks:     12345,
		FrameCount:      12000,
		TelemetryEvents: 740,
		Published:       738,
		PublishFailures: 2,
		PublisherReady:  true,
	}}
	ts := testMux(t, source, nil)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		InstanceID      string            `json:"instance_id"`
		State           string            `json:"state"`
		UptimeTicks     uint64            `json:"uptime_ticks"`
		PublishFailures uint64            `json:"publish_failures"`
		Build           map[string]string `json:"build"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if body.InstanceID != "rig-7" {
		t.Errorf("instance_id = %q, want rig-7", body.InstanceID)
	}
	if body.State != "tracking" {
		t.Errorf("state = %q, want tracking", body.State)
	}
	if body.UptimeTicks != 12345 {
		t.Errorf("uptime_ticks = %d, want 12345", body.UptimeTicks)
	}
	if body.PublishFailures != 2 {
		t.Errorf("publish_failures = %d, want 2", body.PublishFailures)
	}
	if body.Build == nil {
		t.Error("build metadata missing from status response")
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state string
		want  int
	}{
		{"init", http.StatusOK},
		{"ready", http.StatusOK},
		{"tracking", http.StatusOK},
		{"sleep", http.StatusOK},
		{"error", http.StatusServiceUnavailable},
		{"shutdown", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			ts := testMux(t, &fakeSource{status: engine.Status{State: tt.state}}, nil)

			resp, err := http.Get(ts.URL + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("GET /healthz in state %q = %d, want %d", tt.state, resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStreamDeliversBroadcasts(t *testing.T) {
	hub := NewHub(quietLogger())
	ts := testMux(t, &fakeSource{}, hub)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	// Wait for the hub to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(time.Millisecond)
	}

	payload := []byte(`{"frame_id":99}`)
	hub.Broadcast(payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("received %s, want %s", got, payload)
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub(quietLogger())
	ts := testMux(t, &fakeSource{}, hub)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(time.Millisecond)
	}

	// The client never reads. Large payloads fill the kernel socket
	// buffers, the write loop stalls, the send queue fills, and the hub
	// must drop the client instead of blocking the broadcaster.
	payload := make([]byte, 256*1024)
	deadline = time.Now().Add(10 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was never dropped")
		}
		hub.Broadcast(payload)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(quietLogger())
	ts := testMux(t, &fakeSource{}, hub)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Close()
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() after Close = %d, want 0", n)
	}

	// Broadcast after close is a harmless no-op.
	hub.Broadcast([]byte("late"))
}
