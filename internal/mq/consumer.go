package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно событие.
//
// nil подтверждает сообщение. Ошибка, обёрнутая в ErrReject, отклоняет его
// без возврата в очередь (в DLQ, если она настроена). Любая другая ошибка
// возвращает сообщение в очередь и останавливает Consumer.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное событие.
type Delivery struct {
	Message     Message
	RoutingKey  string
	Redelivered bool
}

// Consumer потребляет события из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	bindings []RoutingKey
	handler  Handler
	prefetch int
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — общая durable очередь. Если пусто, каждая подписка объявляет
	// свою эксклюзивную очередь, которая удаляется вместе с подпиской.
	Queue Queue

	// Bindings — routing keys эксклюзивной очереди в ExchangeEvents.
	// По умолчанию все события.
	Bindings []RoutingKey

	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит брокер.
	Prefetch int
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	bindings := cfg.Bindings
	if len(bindings) == 0 {
		bindings = []RoutingKey{RoutingKeyAllEvents}
	}
	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		bindings: bindings,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start потребляет события до отмены ctx или первой ошибки Handler.
// После переподключения брокера подписка восстанавливается.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		restored := c.conn.ReconnectNotify()

		deliveries, queue, err := c.subscribe()
		var aerr *amqp.Error
		if errors.As(err, &aerr) && aerr.Code == amqp.NotFound {
			return err
		}
		if err != nil {
			c.logger.Warn("failed to subscribe", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", queue)
			err = c.drain(ctx, deliveries)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, errDeliveriesClosed) {
				return err
			}
			c.logger.Warn("subscription lost, waiting for reconnect", "queue", queue)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-restored:
		}
	}
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

// subscribe открывает подписку и возвращает имя очереди.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, string, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, "", ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}

	queue := string(c.queue)
	exclusive := queue == ""
	if exclusive {
		name, err := declareWatchQueue(ch, c.bindings)
		if err != nil {
			return nil, "", err
		}
		queue = name
	}

	deliveries, err := ch.Consume(queue, "", false, exclusive, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, queue, nil
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			if err := c.handle(ctx, raw); err != nil {
				return err
			}
		}
	}
}

// handle передаёт сообщение Handler'у и подтверждает его по результату.
// Возвращает только ошибку Handler'а, после которой Consumer останавливается.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) error {
	logger := c.logger.With("routing_key", raw.RoutingKey, "message_id", raw.MessageId)

	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		logger.Warn("rejecting malformed message", "error", err)
		settle(logger, raw.Reject(false))
		return nil
	}

	err := c.handler(ctx, &Delivery{
		Message:     msg,
		RoutingKey:  raw.RoutingKey,
		Redelivered: raw.Redelivered,
	})
	switch {
	case err == nil:
		settle(logger, raw.Ack(false))
		return nil
	case errors.Is(err, ErrReject):
		logger.Warn("message rejected", "type", msg.Type, "error", err)
		settle(logger, raw.Reject(false))
		return nil
	default:
		settle(logger, raw.Nack(false, true))
		return fmt.Errorf("handle %s: %w", msg.Type, err)
	}
}

// settle логирует ошибку ack/nack: при закрытом канале брокер сам вернёт
// сообщение в очередь.
func settle(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("failed to settle message", "error", err)
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal конверта Payload — map[string]any.
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}

// DecodeEvent возвращает типизированный payload события:
// BatchCompletedPayload или RunCompletedPayload.
func DecodeEvent(msg *Message) (any, error) {
	switch msg.Type {
	case MessageTypeBatchCompleted:
		return ParsePayload[BatchCompletedPayload](msg)
	case MessageTypeRunCompleted:
		return ParsePayload[RunCompletedPayload](msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
}
