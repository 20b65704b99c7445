package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/repo"
)

// ReportReader — чтение сохранённых отчётов. Реализуется *repo.ReportRepo.
type ReportReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	List(ctx context.Context, limit int) ([]repo.Summary, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	reports ReportReader
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Reports ReportReader
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		reports: cfg.Reports,
		logger:  logger,
	}
}
