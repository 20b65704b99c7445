package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeEvents Exchange = "tspbatch.events"
	ExchangeDLQ    Exchange = "tspbatch.dlq"
)

// Queues — имена очередей.
const (
	QueueEvents    Queue = "tspbatch.events"
	QueueDLQEvents Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyBatchCompleted RoutingKey = "batch.completed"
	RoutingKeyRunCompleted   RoutingKey = "run.completed"
	RoutingKeyAllEvents      RoutingKey = "#"
	RoutingKeyDLQEvents      RoutingKey = "events"
)

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueEvents, dlqArgs},
		{QueueDLQEvents, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueEvents, RoutingKeyAllEvents, ExchangeEvents},
		{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),
			string(b.routingKey),
			string(b.exchange),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// declareWatchQueue объявляет эксклюзивную очередь с именем от брокера и
// привязывает её к ExchangeEvents. Очередь живёт, пока жив канал подписчика.
func declareWatchQueue(ch *amqp.Channel, keys []RoutingKey) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // имя выдаёт брокер
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("declare watch queue: %w", err)
	}
	for _, key := range keys {
		if err := ch.QueueBind(q.Name, string(key), string(ExchangeEvents), false, nil); err != nil {
			return "", fmt.Errorf("bind %s to %s: %w", q.Name, key, err)
		}
	}
	return q.Name, nil
}

// ParseRoutingKeys проверяет routing keys для подписки на ExchangeEvents:
// известный тип события или шаблон с * и #.
func ParseRoutingKeys(keys []string) ([]RoutingKey, error) {
	out := make([]RoutingKey, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
			continue
		case MessageType(k) == MessageTypeBatchCompleted, MessageType(k) == MessageTypeRunCompleted,
			strings.ContainsAny(k, "*#"):
			out = append(out, RoutingKey(k))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, k)
		}
	}
	return out, nil
}
