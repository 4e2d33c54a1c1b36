package invalidation

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig holds the AMQP listener configuration.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// DefaultAMQPConfig returns listener defaults for url.
func DefaultAMQPConfig(url string) AMQPConfig {
	return AMQPConfig{
		URL:        url,
		Exchange:   "inventory_changes",
		RoutingKey: "#",
	}
}

// AMQPListener reads events from a topic exchange through an exclusive queue.
type AMQPListener struct {
	cfg     AMQPConfig
	handler *Handler
}

// NewAMQPListener creates a listener.
func NewAMQPListener(cfg AMQPConfig, handler *Handler) (*AMQPListener, error) {
	if cfg.URL == "" || cfg.Exchange == "" {
		return nil, errors.New("amqp url and exchange are required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "#"
	}
	return &AMQPListener{cfg: cfg, handler: handler}, nil
}

// Start connects, binds an exclusive queue to the exchange and consumes until ctx
// is done or the channel closes.
func (l *AMQPListener) Start(ctx context.Context) error {
	conn, err := amqp.Dial(l.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := declareBindAndConsume(ch, l.cfg)
	if err != nil {
		return err
	}

	l.handler.logger.Info().
		Str("exchange", l.cfg.Exchange).
		Str("routing_key", l.cfg.RoutingKey).
		Msg("AMQP invalidation listener starting")
	return l.consume(ctx, deliveries)
}

func declareBindAndConsume(ch *amqp.Channel, cfg AMQPConfig) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // noWait
		nil,          // arguments
	); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return ch.Consume(
		q.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// consume applies deliveries until ctx is done or the channel closes. Applied and
// invalid events are acknowledged; failed invalidations are requeued.
func (l *AMQPListener) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			l.handler.logger.Info().Msg("AMQP invalidation listener shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			_, err := l.handler.Handle(ctx, "amqp", d.Body)
			switch {
			case err == nil, errors.Is(err, ErrInvalidEvent):
				if ackErr := d.Ack(false); ackErr != nil {
					l.handler.logger.Warn().Err(ackErr).Msg("AMQP ack failed")
				}
			default:
				if nackErr := d.Nack(false, true); nackErr != nil {
					l.handler.logger.Warn().Err(nackErr).Msg("AMQP nack failed")
				}
			}
		}
	}
}
