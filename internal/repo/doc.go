// Package repo хранит итоговые отчёты runs в PostgreSQL (pgx).
//
// Таблица run_reports создаётся EnsureSchema. Отчёт сохраняется целиком
// после завершения run; per-index outcomes лежат в jsonb в порядке входа.
package repo
