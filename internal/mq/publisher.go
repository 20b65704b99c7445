package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/tspbatch/internal/domain"
)

// MessageType — тип события.
type MessageType string

// Типы событий.
const (
	MessageTypeBatchCompleted MessageType = "batch.completed"
	MessageTypeRunCompleted   MessageType = "run.completed"
)

// Publisher публикует события в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт события.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// BatchCompletedPayload — batch прошёл барьер: все tasks завершены, буферы освобождены.
type BatchCompletedPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	Batch    int       `json:"batch"`
	Lo       int       `json:"lo"`
	Hi       int       `json:"hi"`
	Present  int       `json:"present"`
	Absent   int       `json:"absent"`
	Duration float64   `json:"duration_seconds"`
	Error    string    `json:"error,omitempty"`
}

// RunCompletedPayload — run завершён (в любом финальном статусе).
type RunCompletedPayload struct {
	RunID   uuid.UUID        `json:"run_id"`
	Status  domain.RunStatus `json:"status"`
	Backend string           `json:"backend"`
	Stats   domain.Stats     `json:"stats"`
	Error   string           `json:"error,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published event",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishBatchCompleted публикует событие о завершённом batch'е.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, payload BatchCompletedPayload) error {
	msg := NewMessage(MessageTypeBatchCompleted, payload)
	return p.Publish(ctx, ExchangeEvents, RoutingKeyBatchCompleted, msg)
}

// PublishRunCompleted публикует событие о завершённом run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, payload RunCompletedPayload) error {
	msg := NewMessage(MessageTypeRunCompleted, payload)
	return p.Publish(ctx, ExchangeEvents, RoutingKeyRunCompleted, msg)
}
