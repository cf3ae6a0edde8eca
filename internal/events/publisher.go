// Package events publishes settlement domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "booksettle.events"
	ExchangeType = "topic"

	dialAttempts = 5
)

// Publisher sends events with routing key "<type>", e.g. order.submitted.
// Publishing is best effort: a channel closed by a broker error is reopened on the
// next publish, a lost connection is not redialled and every later publish fails.
type Publisher struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		attempt++
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("failed to connect to rabbitmq", "method", "Dial", "attempt", attempt, "error", err)
			return nil, err
		}
		return conn, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(dialAttempts),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("amqp.Dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("conn.Channel: %w", err), conn.Close())
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("ch.ExchangeDeclare: %w", err), conn.Close())
	}

	return &Publisher{conn: conn, ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		ExchangeName,       // exchange
		string(event.Type), // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("ch.PublishWithContext: %w", err)
	}

	return nil
}

// channel returns an open channel, reopening it when the broker closed the previous one.
// p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if !p.ch.IsClosed() {
		return p.ch, nil
	}

	if p.conn.IsClosed() {
		return nil, errors.New("rabbitmq connection is closed")
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("conn.Channel: %w", err)
	}

	p.ch = ch
	return ch, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return errors.Join(p.ch.Close(), p.conn.Close())
}

type discard struct{}

// Discard is used when no broker is configured.
var Discard port.EventPublisher = discard{}

func (discard) Publish(context.Context, domain.Event) error {
	return nil
}
