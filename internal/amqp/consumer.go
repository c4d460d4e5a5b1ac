package amqp

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/visorlabs/headsetd/internal/config"
)

// Consumer attaches an ephemeral queue to the telemetry exchange and
// delivers payloads to a handler. It backs the consume subcommand — a
// diagnostic tap on the telemetry stream, not part of the agent loop.
type Consumer struct {
	cfg    config.BrokerConfig
	logger *slog.Logger
}

// NewConsumer creates a consumer for the configured exchange and
// routing key.
func NewConsumer(cfg config.BrokerConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger}
}

// Run connects, binds an exclusive auto-deleted queue to the exchange,
// and calls handler for every delivery until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handler func(payload []byte)) error {
	conn, err := amqp.Dial(URI(c.cfg))
	if err != nil {
		return fmt.Errorf("dial broker %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		"",    // broker-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue to %q with key %q: %w", c.cfg.Exchange, c.cfg.RoutingKey, err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	c.logger.Info("consuming telemetry",
		"exchange", c.cfg.Exchange,
		"routing_key", c.cfg.RoutingKey,
		"queue", q.Name,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed by broker")
			}
			handler(d.Body)
		}
	}
}
