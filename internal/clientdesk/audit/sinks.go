package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/clientdesk/pkg/idx"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the AMQP queue events go to when none is configured.
const DefaultQueue = "clientdesk.audit"

// LogSink writes events as structured log records.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "audit",
		slog.String("action", ev.Action),
		slog.String("entity", ev.Entity),
		slog.String("entity_id", ev.EntityID),
		slog.String("run_id", ev.RunID),
		slog.Any("metadata", ev.Metadata),
		slog.Time("at", ev.At),
	)
	return nil
}

// AMQPSink publishes events as persistent JSON messages to a durable queue
// on the default exchange.
type AMQPSink struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPSink dials url and declares queue.
func NewAMQPSink(url, queue string) (*AMQPSink, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %q: %w", queue, err)
	}

	return &AMQPSink{conn: conn, ch: ch, queue: queue}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	return s.ch.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    idx.New().String(),
			Timestamp:    ev.At,
			Type:         ev.Action,
			Body:         body,
		},
	)
}

func (s *AMQPSink) Close() error {
	chErr := s.ch.Close()
	connErr := s.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
