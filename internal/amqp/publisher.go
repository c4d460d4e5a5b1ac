// Package amqp implements the telemetry transport against a RabbitMQ
// topic exchange. The publisher declares the exchange on connect and
// sends each snapshot as a persistent JSON message; the consumer side
// (used by the consume subcommand) binds an ephemeral queue to the same
// exchange.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/visorlabs/headsetd/internal/config"
	"github.com/visorlabs/headsetd/internal/telemetry"
)

// Publisher sends telemetry to a RabbitMQ topic exchange. It satisfies
// the engine's Publisher boundary: Publish reports failure and the
// engine's fault accounting decides what to make of it. A lost
// connection is re-dialed lazily on the next publish rather than in a
// dedicated retry loop.
type Publisher struct {
	cfg    config.BrokerConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a publisher but does not connect. Call
// [Publisher.Connect] to dial the broker and declare the exchange.
func NewPublisher(cfg config.BrokerConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// URI builds the broker connection string from the config. The vhost
// "/" maps to an empty path per the AMQP URI spec; any other vhost is
// path-escaped.
func URI(cfg config.BrokerConfig) string {
	vhost := ""
	if cfg.VHost != "" && cfg.VHost != "/" {
		vhost = url.PathEscape(cfg.VHost)
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, vhost)
}

// Connect dials the broker, opens a channel, and declares the durable
// topic exchange. Safe to call again after a connection loss.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked()
}

func (p *Publisher) connectLocked() error {
	p.closeLocked()

	conn, err := amqp.Dial(URI(p.cfg))
	if err != nil {
		return fmt.Errorf("dial broker %s:%d: %w", p.cfg.Host, p.cfg.Port, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.cfg.Exchange, // name
		"topic",        // kind
		true,           // durable
		false,          // auto-delete
		false,          // internal
		false,          // no-wait
		nil,            // args
	); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %q: %w", p.cfg.Exchange, err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info("connected to broker",
		"host", p.cfg.Host,
		"port", p.cfg.Port,
		"exchange", p.cfg.Exchange,
		"routing_key", p.cfg.RoutingKey,
	)
	return nil
}

// Ready reports whether the connection is up.
func (p *Publisher) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

// Publish sends one snapshot as a persistent application/json message.
// If the connection has dropped it attempts one reconnect first; a
// failed reconnect is the publish failure.
func (p *Publisher) Publish(ctx context.Context, s *telemetry.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connectLocked(); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}

	payload := telemetry.Encode(s)
	p.logger.Log(ctx, config.LevelTrace, "publishing telemetry",
		"frame", s.FrameID, "payload", string(payload))

	err := p.ch.PublishWithContext(ctx,
		p.cfg.Exchange,
		p.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish frame %d: %w", s.FrameID, err)
	}
	return nil
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
