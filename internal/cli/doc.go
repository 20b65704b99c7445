// Package cli реализует инструмент командной строки tspbatch.
//
// # Обзор
//
// Команды собирают компоненты из конфигурации (пакет config) и
// запускают их в текущем процессе:
//
//   - run     — решить набор данных через пул воркеров (shared memory)
//   - legacy  — то же через файлы и внешний исполняемый solver
//   - worker  — процесс воркера пула (скрытая, запускается пулом)
//   - report  — сохранённые отчёты: list, show
//   - watch   — события batch.completed и run.completed из RabbitMQ
//   - serve   — HTTP API сохранённых отчётов, /healthz, /metrics
//
// # Конфигурация
//
// Порядок применения: значения по умолчанию, YAML-файл (--config),
// переменные окружения, затем флаги. Флаг переопределяет конфигурацию,
// только если задан явно (cmd.Flags().Changed).
//
// # Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, логи и итоговые сообщения — в stderr.
// Это позволяет использовать pipe: tspbatch run --json ... | jq .stats
package cli
