package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"blocktix/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitReconciler queues unfulfilled payments for operators on a durable
// RabbitMQ queue.
type RabbitReconciler struct {
	conn    *amqp.Connection
	channel amqpPublisher
	closer  func() error
	queue   string
}

func NewRabbitReconciler(url, queue string) (*RabbitReconciler, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	slog.Info("RabbitMQ reconciler initialized", "queue", queue)
	return &RabbitReconciler{conn: conn, channel: ch, closer: ch.Close, queue: queue}, nil
}

func (r *RabbitReconciler) Record(ctx context.Context, rec models.UnfulfilledPayment) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode unfulfilled payment: %w", err)
	}

	err = r.channel.PublishWithContext(ctx,
		"",
		r.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish unfulfilled payment %s: %w", rec.Payment.TxHash, err)
	}
	return nil
}

func (r *RabbitReconciler) Close() {
	if r.closer != nil {
		_ = r.closer()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	slog.Info("RabbitMQ connection closed")
}

// LogReconciler records unfulfilled payments in the error log only.
type LogReconciler struct{}

func (LogReconciler) Record(ctx context.Context, rec models.UnfulfilledPayment) error {
	slog.Error("Unfulfilled payment",
		"operation", rec.Operation,
		"tx_hash", rec.Payment.TxHash,
		"from", rec.Payment.From,
		"to", rec.Payment.To,
		"amount", rec.Amount.String(),
		"event_id", rec.EventID,
		"ticket_id", rec.TicketID,
		"minted", rec.Minted,
		"quantity", rec.Quantity,
		"reason", rec.Reason,
	)
	return nil
}
