package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const maxBackoff = 30 * time.Second

// AuditLog appends one JSON line per event.
type AuditLog struct {
	out zerolog.Logger
}

func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{out: zerolog.New(w).With().Timestamp().Logger()}
}

// OpenAuditLog opens path for appending, creating parent directories.
func OpenAuditLog(path string) (*AuditLog, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewAuditLog(f), f, nil
}

// Handle decodes one message body and records it.
func (a *AuditLog) Handle(body []byte) error {
	var ev ResourceEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" || ev.Type == "" {
		return errors.New("event without kind or type")
	}
	a.out.Info().
		Str("event", ev.RoutingKey()).
		Int64("resource_id", ev.ID).
		Int64("parent_id", ev.ParentID).
		Int64("owner_id", ev.OwnerID).
		Int64("actor_id", ev.ActorID).
		Time("occurred_at", ev.OccurredAt).
		Msg("resource changed")
	return nil
}

// Consumer binds Queue to the events exchange and feeds deliveries to
// an AuditLog, reconnecting with exponential backoff.
type Consumer struct {
	URL   string
	Queue string
	Audit *AuditLog
	Log   zerolog.Logger
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn().Err(err).Dur("retry_in", backoff).Msg("audit consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn().Err(err).Msg("audit consumer: loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("audit consumer: set qos failed")
	}
	if err := DeclareExchange(ch); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(c.Queue, "#", ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.Log.Info().Str("queue", c.Queue).Msg("audit consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Audit.Handle(d.Body); err != nil {
				c.Log.Error().Err(err).Msg("audit consumer: rejecting message")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
