// Package mqtt implements the telemetry transport against an MQTT
// broker, for deployments that front their telemetry pipeline with MQTT
// instead of AMQP. The AMQP exchange/routing-key pair maps onto an MQTT
// topic; the payload is the same protocol-locked JSON either way.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/visorlabs/headsetd/internal/config"
	"github.com/visorlabs/headsetd/internal/telemetry"
)

// Publisher manages the MQTT connection and publishes telemetry
// snapshots. autopaho owns reconnection; Ready tracks the connection
// state so the engine's fault accounting sees broker outages as publish
// failures rather than hangs.
type Publisher struct {
	cfg        config.BrokerConfig
	instanceID string
	logger     *slog.Logger

	cm        *autopaho.ConnectionManager
	connected atomic.Bool
}

// NewPublisher creates a Publisher but does not connect. Call
// [Publisher.Start] to begin the managed connection.
func NewPublisher(cfg config.BrokerConfig, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, instanceID: instanceID, logger: logger}
}

// Topic returns the MQTT topic the snapshots are published to: the
// exchange name joined with the routing key, AMQP dots becoming topic
// level separators (headset_telemetry/telemetry/data).
func Topic(cfg config.BrokerConfig) string {
	return cfg.Exchange + "/" + strings.ReplaceAll(cfg.RoutingKey, ".", "/")
}

// availabilityTopic carries the retained online/offline marker, with an
// MQTT will so consumers see "offline" even on an unclean death.
func availabilityTopic(cfg config.BrokerConfig) string {
	return cfg.Exchange + "/availability"
}

// Start connects to the MQTT broker and returns once the connection
// manager is running. The connection itself may come up later;
// autopaho keeps retrying in the background and Ready reflects the
// current state.
func (p *Publisher) Start(ctx context.Context) error {
	broker := fmt.Sprintf("mqtt://%s:%d", p.cfg.Host, p.cfg.Port)
	brokerURL, err := url.Parse(broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := availabilityTopic(p.cfg)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.connected.Store(true)
			p.logger.Info("mqtt connected to broker", "broker", broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.connected.Store(false)
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "headsetd-" + p.instanceID,
			OnClientError: func(err error) {
				p.connected.Store(false)
				p.logger.Warn("mqtt client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				p.connected.Store(false)
				p.logger.Warn("mqtt server disconnect", "reason_code", d.ReasonCode)
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	// Wait briefly for the initial connection so a reachable broker is
	// ready before the first telemetry tick fires.
	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return nil
}

// Ready reports whether the broker connection is currently up.
func (p *Publisher) Ready() bool {
	return p.cm != nil && p.connected.Load()
}

// Publish sends one snapshot at QoS 1 to the telemetry topic.
func (p *Publisher) Publish(ctx context.Context, s *telemetry.Snapshot) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}

	payload := telemetry.Encode(s)
	p.logger.Log(ctx, config.LevelTrace, "publishing telemetry",
		"frame", s.FrameID, "payload", string(payload))

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   Topic(p.cfg),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish frame %d: %w", s.FrameID, err)
	}
	return nil
}

// Stop publishes a retained "offline" availability marker and closes
// the connection. The provided context bounds the disconnect.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   availabilityTopic(p.cfg),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}
