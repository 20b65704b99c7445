// Package api содержит HTTP API сохранённых отчётов (только чтение).
//
// Структура:
//   - handler.go        — Handler с DI (хранилище отчётов, logger)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (request id, logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - report_handler.go — обработчики для /reports
package api
