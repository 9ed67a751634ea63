package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends resource events. Callers treat failures as best effort.
type Publisher interface {
	Publish(ctx context.Context, ev ResourceEvent) error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ResourceEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to ExchangeName. The
// connection is opened on first use and reopened after a failure.
type AMQPPublisher struct {
	url string
	log zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string, log zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := DeclareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// DeclareExchange declares the durable topic exchange. It is idempotent.
func DeclareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Publish sends ev with routing key ev.RoutingKey().
func (p *AMQPPublisher) Publish(ctx context.Context, ev ResourceEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.log.Warn().Err(err).Str("routing_key", ev.RoutingKey()).Msg("event not published")
		return err
	}
	err = ch.PublishWithContext(ctx, ExchangeName, ev.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		p.log.Warn().Err(err).Str("routing_key", ev.RoutingKey()).Msg("event not published")
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
