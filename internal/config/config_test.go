package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headsetd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Broker.Transport != "amqp" {
		t.Errorf("Broker.Transport = %q, want amqp", cfg.Broker.Transport)
	}
	if cfg.Broker.Port != 5672 {
		t.Errorf("Broker.Port = %d, want 5672", cfg.Broker.Port)
	}
	if cfg.Broker.Exchange != "headset_telemetry" {
		t.Errorf("Broker.Exchange = %q, want headset_telemetry", cfg.Broker.Exchange)
	}
	if cfg.Broker.RoutingKey != "telemetry.data" {
		t.Errorf("Broker.RoutingKey = %q, want telemetry.data", cfg.Broker.RoutingKey)
	}
	if cfg.Engine.SensorUpdateHz != 1000 {
		t.Errorf("Engine.SensorUpdateHz = %d, want 1000", cfg.Engine.SensorUpdateHz)
	}
	if cfg.Engine.TelemetryRateHz != 60 {
		t.Errorf("Engine.TelemetryRateHz = %d, want 60", cfg.Engine.TelemetryRateHz)
	}
	if cfg.Engine.WatchdogTimeoutMS != 5000 {
		t.Errorf("Engine.WatchdogTimeoutMS = %d, want 5000", cfg.Engine.WatchdogTimeoutMS)
	}
	if cfg.Engine.EscalationThreshold != 5 {
		t.Errorf("Engine.EscalationThreshold = %d, want 5", cfg.Engine.EscalationThreshold)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  host: rabbit.lan
  routing_key: telemetry.rig7
engine:
  telemetry_rate_hz: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Broker.Host != "rabbit.lan" {
		t.Errorf("Broker.Host = %q, want rabbit.lan", cfg.Broker.Host)
	}
	if cfg.Broker.RoutingKey != "telemetry.rig7" {
		t.Errorf("Broker.RoutingKey = %q, want telemetry.rig7", cfg.Broker.RoutingKey)
	}
	if cfg.Engine.TelemetryRateHz != 30 {
		t.Errorf("Engine.TelemetryRateHz = %d, want 30", cfg.Engine.TelemetryRateHz)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Broker.Port != 5672 {
		t.Errorf("Broker.Port = %d, want default 5672", cfg.Broker.Port)
	}
	if cfg.Engine.SensorUpdateHz != 1000 {
		t.Errorf("Engine.SensorUpdateHz = %d, want default 1000", cfg.Engine.SensorUpdateHz)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("HEADSETD_TEST_PASSWORD", "s3cret")
	path := writeConfig(t, `
broker:
  password: ${HEADSETD_TEST_PASSWORD}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Broker.Password != "s3cret" {
		t.Errorf("Broker.Password = %q, want expanded env value", cfg.Broker.Password)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "broker: [not, a, mapping")
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("FindConfig() accepted a missing explicit path")
	}

	path := writeConfig(t, "")
	found, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig() error: %v", err)
	}
	if found != path {
		t.Errorf("FindConfig() = %q, want %q", found, path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"console needs no broker fields", func(c *Config) {
			c.Broker = BrokerConfig{Transport: "console"}
		}, ""},
		{"unknown transport", func(c *Config) { c.Broker.Transport = "kafka" }, "transport"},
		{"missing host", func(c *Config) { c.Broker.Host = "" }, "host"},
		{"port out of range", func(c *Config) { c.Broker.Port = 70000 }, "port"},
		{"empty exchange", func(c *Config) { c.Broker.Exchange = "" }, "exchange"},
		{"empty routing key", func(c *Config) { c.Broker.RoutingKey = "" }, "routing_key"},
		{"negative queue depth", func(c *Config) { c.Broker.QueueDepth = -1 }, "queue_depth"},
		{"negative sensor rate", func(c *Config) { c.Engine.SensorUpdateHz = -1 }, "sensor_update_hz"},
		{"negative telemetry rate", func(c *Config) { c.Engine.TelemetryRateHz = -5 }, "telemetry_rate_hz"},
		{"watchdog on without timeout", func(c *Config) { c.Engine.WatchdogTimeoutMS = 0 }, "watchdog_timeout_ms"},
		{"watchdog off ignores timeout", func(c *Config) {
			c.Engine.WatchdogEnabled = false
			c.Engine.WatchdogTimeoutMS = 0
		}, ""},
		{"sleep level too deep", func(c *Config) { c.Engine.CPUSleepLevel = 4 }, "cpu_sleep_level"},
		{"zero escalation threshold", func(c *Config) { c.Engine.EscalationThreshold = 0 }, "escalation_threshold"},
		{"negative duration", func(c *Config) { c.Engine.DurationSec = -10 }, "duration_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)}
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("trace level renders as %q, want TRACE", got.Value.String())
	}

	info := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)}
	if got := ReplaceLogLevelNames(nil, info); got.Value.Any() != any(slog.LevelInfo) {
		t.Errorf("info level was rewritten: %v", got.Value)
	}
}
