// Package telemetry обеспечивает наблюдаемость оркестратора.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (tasks, batches, shared-буферы, воркеры)
//
// Оркестратор экспортирует метрики на /metrics; процессы воркеров
// пишут только логи, в stderr.
package telemetry
