// Package mq публикует и потребляет события tspbatch через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий
//   - consumer.go   — потребление событий: общая очередь или эксклюзивная
//     очередь на одну подписку
//
// Типы событий:
//   - batch.completed — batch прошёл барьер, буферы освобождены
//   - run.completed   — run завершён, итоговая статистика
//
// Exchanges:
//   - tspbatch.events — события (topic)
//   - tspbatch.dlq    — dead letter queue
package mq
