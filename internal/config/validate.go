package config

import "fmt"

// knownTransports are the telemetry transports Validate accepts.
var knownTransports = map[string]bool{
	"amqp":    true,
	"mqtt":    true,
	"console": true,
}

// Validate checks cross-field constraints that YAML decoding cannot
// express. It returns the first violation found.
func (c *Config) Validate() error {
	if !knownTransports[c.Broker.Transport] {
		return fmt.Errorf("broker.transport %q not recognized (valid: amqp, mqtt, console)", c.Broker.Transport)
	}
	if c.Broker.Transport != "console" {
		if c.Broker.Host == "" {
			return fmt.Errorf("broker.host must be set for transport %q", c.Broker.Transport)
		}
		if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
			return fmt.Errorf("broker.port %d out of range (1-65535)", c.Broker.Port)
		}
		if c.Broker.Exchange == "" {
			return fmt.Errorf("broker.exchange must not be empty")
		}
		if c.Broker.RoutingKey == "" {
			return fmt.Errorf("broker.routing_key must not be empty")
		}
	}
	if c.Broker.PublishTimeoutMS < 0 {
		return fmt.Errorf("broker.publish_timeout_ms must not be negative")
	}
	if c.Broker.QueueDepth < 0 {
		return fmt.Errorf("broker.queue_depth must not be negative")
	}

	return c.Engine.Validate()
}

// Validate checks the engine rate and policy fields. A rate of zero is
// legal (the duty is disabled); negative rates are not.
func (e *EngineConfig) Validate() error {
	if e.SensorUpdateHz < 0 {
		return fmt.Errorf("engine.sensor_update_hz must not be negative")
	}
	if e.TelemetryRateHz < 0 {
		return fmt.Errorf("engine.telemetry_rate_hz must not be negative")
	}
	if e.WatchdogEnabled && e.WatchdogTimeoutMS <= 0 {
		return fmt.Errorf("engine.watchdog_timeout_ms must be positive when the watchdog is enabled")
	}
	if e.CPUSleepLevel < 0 || e.CPUSleepLevel > 3 {
		return fmt.Errorf("engine.cpu_sleep_level %d out of range (0-3)", e.CPUSleepLevel)
	}
	if e.EscalationThreshold <= 0 {
		return fmt.Errorf("engine.escalation_threshold must be positive")
	}
	if e.DurationSec < 0 {
		return fmt.Errorf("engine.duration_sec must not be negative")
	}
	return nil
}
