// Package config handles headsetd configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./headsetd.yaml, ~/.config/headsetd/config.yaml, /etc/headsetd/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"headsetd.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "headsetd", "config.yaml"))
	}

	paths = append(paths, "/etc/headsetd/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all headsetd configuration.
type Config struct {
	Broker   BrokerConfig  `yaml:"broker"`
	Engine   EngineConfig  `yaml:"engine"`
	Listen   ListenConfig  `yaml:"listen"`
	Journal  JournalConfig `yaml:"journal"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// BrokerConfig defines the telemetry transport. Transport selects the
// adapter: "amqp" publishes to a RabbitMQ topic exchange, "mqtt" to an
// MQTT broker, and "console" writes JSON lines to stdout (the -no-broker
// mode).
type BrokerConfig struct {
	Transport  string `yaml:"transport"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	VHost      string `yaml:"vhost"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`

	// PublishTimeoutMS bounds each publish call. A timed-out publish is
	// reported as a publish failure, never retried in place.
	PublishTimeoutMS int `yaml:"publish_timeout_ms"`

	// QueueDepth is the size of the publish dispatch queue between the
	// tick loop and the publish worker. 0 publishes inline from the tick
	// loop (console transport and tests).
	QueueDepth int `yaml:"queue_depth"`
}

// EngineConfig defines the tick engine's rates and policies. Rates are
// expressed in Hz against a nominal 1 ms tick; a rate of 0 disables the
// corresponding duty entirely.
type EngineConfig struct {
	SensorUpdateHz    int  `yaml:"sensor_update_hz"`
	TelemetryRateHz   int  `yaml:"telemetry_rate_hz"`
	WatchdogEnabled   bool `yaml:"watchdog_enabled"`
	WatchdogTimeoutMS int  `yaml:"watchdog_timeout_ms"`
	PowerSaveEnabled  bool `yaml:"power_save_enabled"`
	CPUSleepLevel     int  `yaml:"cpu_sleep_level"`

	// EscalationThreshold is the error count above which the engine
	// enters the Error state. The count must strictly exceed it: with
	// the default of 5, the sixth error escalates.
	EscalationThreshold int `yaml:"escalation_threshold"`

	// DurationSec limits the run to this many seconds of ticks.
	// 0 means run until signalled.
	DurationSec int `yaml:"duration_sec"`
}

// ListenConfig defines the read-only status API server.
type ListenConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// JournalConfig defines the local snapshot journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
	// Keep is the number of recent snapshots retained (default 1000).
	Keep int `yaml:"keep"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the default configuration: 1 kHz sensor sampling,
// 60 Hz telemetry, a 5 second watchdog, and an AMQP broker on localhost.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Transport:        "amqp",
			Host:             "localhost",
			Port:             5672,
			Username:         "guest",
			Password:         "guest",
			VHost:            "/",
			Exchange:         "headset_telemetry",
			RoutingKey:       "telemetry.data",
			PublishTimeoutMS: 2000,
			QueueDepth:       32,
		},
		Engine: EngineConfig{
			SensorUpdateHz:      1000,
			TelemetryRateHz:     60,
			WatchdogEnabled:     true,
			WatchdogTimeoutMS:   5000,
			PowerSaveEnabled:    false,
			CPUSleepLevel:       1,
			EscalationThreshold: 5,
		},
		Listen: ListenConfig{Enabled: true, Port: 8093},
		Journal: JournalConfig{
			Keep: 1000,
		},
		DataDir: ".",
	}
}
