package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/event"
)

// AMQPConfig configures the relay of domain events to a RabbitMQ exchange.
type AMQPConfig struct {
	URL               string
	Exchange          string
	RoutingPrefix     string
	MaxRetries        int
	ReconnectInterval time.Duration
}

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher forwards every domain event to a topic exchange with the
// routing key "<prefix>.<event_type>".
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	prefix   string
	logger   *zap.Logger
}

// DialAMQP connects to the broker, retrying up to cfg.MaxRetries times, and
// declares the exchange.
func DialAMQP(ctx context.Context, cfg AMQPConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	var lastErr error
	for i := 0; i <= cfg.MaxRetries; i++ {
		p, err := dialOnce(cfg, logger)
		if err == nil {
			return p, nil
		}
		lastErr = err
		logger.Warn("amqp connect failed", zap.Int("attempt", i+1), zap.Error(lastErr))
		if i < cfg.MaxRetries {
			select {
			case <-time.After(cfg.ReconnectInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("connecting to rabbitmq after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

func dialOnce(cfg AMQPConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, cfg, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, cfg AMQPConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declaring exchange %q: %w", cfg.Exchange, err)
	}
	prefix := cfg.RoutingPrefix
	if prefix == "" {
		prefix = "rentals"
	}
	return &AMQPPublisher{
		ch:       ch,
		exchange: cfg.Exchange,
		prefix:   prefix,
		logger:   logger.Named("amqp"),
	}, nil
}

// HandleEvent publishes evt as a persistent JSON message.
func (p *AMQPPublisher) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", evt.ID, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Type:         evt.EventType,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	}
	key := p.prefix + "." + evt.EventType
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", evt.EventType, p.exchange, err)
	}
	p.logger.Debug("event relayed", zap.String("routing_key", key), zap.String("id", evt.ID))
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
