package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tryonrelay/internal/config"
	"tryonrelay/internal/logging"
)

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, eventType, correlationID string, data any) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }

func (Noop) Close() error { return nil }

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes envelopes to a durable topic exchange over a single
// channel.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	producer string
	now      func() time.Time
}

// Connect returns a Publisher for cfg.Events. An empty AMQP URL yields Noop.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	if cfg == nil || cfg.Events.AMQPURL == "" {
		return Noop{}, nil
	}
	logger = logging.NewComponentLogger(logger, "events")

	host := ""
	if u, err := url.Parse(cfg.Events.AMQPURL); err == nil {
		host = u.Host
	}
	logger.Info("connecting to rabbitmq", logging.String("host", host), logging.String("exchange", cfg.Events.Exchange))

	timeout := time.Duration(cfg.Events.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, errors.New("connect rabbitmq: context deadline exceeded")
	}

	conn, err := amqp.DialConfig(cfg.Events.AMQPURL, amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.Table{"connection_name": cfg.Events.Producer},
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Events.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Events.Exchange, err)
	}

	pub := newAMQPPublisher(ch, cfg.Events.Exchange, cfg.Events.Producer)
	pub.conn = conn
	logger.Info("event publisher ready")
	return pub, nil
}

func newAMQPPublisher(ch amqpChannel, exchange, producer string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, producer: producer, now: time.Now}
}

// Publish wraps data in an Envelope and sends it as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, eventType, correlationID string, data any) error {
	env, err := NewEnvelope(p.producer, eventType, correlationID, data, p.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("publish: publisher closed")
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(eventType), false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         p.producer,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}
