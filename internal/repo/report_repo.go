package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/tspbatch/internal/domain"
)

// ReportRepo — репозиторий итоговых отчётов runs.
type ReportRepo struct {
	pool *pgxpool.Pool
}

// NewReportRepo создаёт новый ReportRepo.
func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// Save сохраняет отчёт. Повторное сохранение того же run перезаписывает запись.
func (r *ReportRepo) Save(ctx context.Context, report *domain.Report) error {
	if report == nil || report.Run == nil {
		return fmt.Errorf("%w: report without run", ErrInvalidState)
	}
	run := report.Run

	params, batches, stats, outcomes, err := marshalReport(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO run_reports (id, status, backend, instance_count, workers,
		                         params, batches, stats, outcomes, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    batches = EXCLUDED.batches,
		    stats = EXCLUDED.stats,
		    outcomes = EXCLUDED.outcomes,
		    error = EXCLUDED.error,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.Backend,
		run.InstanceCount,
		run.Workers,
		params,
		batches,
		stats,
		outcomes,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Get возвращает отчёт по ID run.
func (r *ReportRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	query := `
		SELECT id, status, backend, instance_count, workers,
		       params, batches, stats, outcomes, error, started_at, finished_at
		FROM run_reports
		WHERE id = $1
	`

	var (
		run                              domain.Run
		params, batches, stats, outcomes []byte
		errText                          *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Status,
		&run.Backend,
		&run.InstanceCount,
		&run.Workers,
		&params,
		&batches,
		&stats,
		&outcomes,
		&errText,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if errText != nil {
		run.Error = *errText
	}

	report := &domain.Report{Run: &run}
	if err := unmarshalReport(report, params, batches, stats, outcomes); err != nil {
		return nil, err
	}
	return report, nil
}

// Summary — строка списка отчётов.
type Summary struct {
	ID            uuid.UUID        `json:"id"`
	Status        domain.RunStatus `json:"status"`
	Backend       string           `json:"backend"`
	InstanceCount int              `json:"instance_count"`
	MeanGap       float64          `json:"mean_gap"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// List возвращает последние отчёты, новые первыми.
func (r *ReportRepo) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, status, backend, instance_count,
		       COALESCE((stats->>'mean_gap')::double precision, 0),
		       started_at, finished_at
		FROM run_reports
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Status, &s.Backend, &s.InstanceCount, &s.MeanGap, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func marshalReport(report *domain.Report) (params, batches, stats, outcomes []byte, err error) {
	if params, err = json.Marshal(report.Run.Params); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal params: %w", err)
	}
	if batches, err = json.Marshal(report.Run.Batches); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal batches: %w", err)
	}
	if stats, err = json.Marshal(report.Stats); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal stats: %w", err)
	}
	if outcomes, err = json.Marshal(report.Outcomes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal outcomes: %w", err)
	}
	return params, batches, stats, outcomes, nil
}

func unmarshalReport(report *domain.Report, params, batches, stats, outcomes []byte) error {
	if err := json.Unmarshal(params, &report.Run.Params); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(batches, &report.Run.Batches); err != nil {
		return fmt.Errorf("unmarshal batches: %w", err)
	}
	if err := json.Unmarshal(stats, &report.Stats); err != nil {
		return fmt.Errorf("unmarshal stats: %w", err)
	}
	if err := json.Unmarshal(outcomes, &report.Outcomes); err != nil {
		return fmt.Errorf("unmarshal outcomes: %w", err)
	}
	return nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
