package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер с выводом в stdout.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger() *slog.Logger {
	return SetupLoggerTo(os.Stdout)
}

// SetupLoggerTo — как SetupLogger, но пишет в w.
// Процесс воркера логирует в stderr: stdout занят каналом сообщений.
func SetupLoggerTo(w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// WithRunID возвращает логгер с добавленным run_id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithBatch возвращает логгер с диапазоном batch'а.
func WithBatch(logger *slog.Logger, batch int, lo, hi int) *slog.Logger {
	return logger.With("batch", batch, "lo", lo, "hi", hi)
}

// WithIndex возвращает логгер с индексом инстанса.
func WithIndex(logger *slog.Logger, index int) *slog.Logger {
	return logger.With("index", index)
}

// WithWorker возвращает логгер с номером слота воркера.
func WithWorker(logger *slog.Logger, workerID int) *slog.Logger {
	return logger.With("worker_id", workerID)
}
