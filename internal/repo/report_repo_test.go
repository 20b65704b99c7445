package repo

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
)

// Требует PostgreSQL: TSPBATCH_TEST_DB_URL=postgresql://... go test ./internal/repo
func testRepo(t *testing.T) *ReportRepo {
	t.Helper()
	dsn := os.Getenv("TSPBATCH_TEST_DB_URL")
	if dsn == "" {
		t.Skip("TSPBATCH_TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewReportRepo(pool)
}

func TestReportRepo_SaveGet(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	run := domain.NewRun("shm", 2, 1, domain.DefaultSolverParams())
	run.Batches = []domain.BatchRange{{Lo: 0, Hi: 2}}
	run.MarkSucceeded()

	report := &domain.Report{
		Run: run,
		Outcomes: []domain.Outcome{
			domain.Present(0, &domain.Result{ConcordeDistance: 4, MCTSDistance: 4, Solution: []int{0, 1, 2, 3}}),
			domain.Absent(1, "worker died"),
		},
		Stats: domain.Stats{Total: 2, Present: 1, Absent: 1, MeanConcorde: 4, MeanMCTS: 4},
	}

	if err := r.Save(ctx, report); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Повторное сохранение перезаписывает.
	if err := r.Save(ctx, report); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := r.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Run.Status != domain.RunStatusSucceeded || got.Run.Params.Beta != 10 {
		t.Errorf("unexpected run: %+v", got.Run)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[1].IsPresent() || got.Outcomes[1].Error != "worker died" {
		t.Errorf("unexpected outcomes: %+v", got.Outcomes)
	}
	if got.Stats.Absent != 1 {
		t.Errorf("unexpected stats: %+v", got.Stats)
	}

	list, err := r.List(ctx, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) == 0 {
		t.Error("expected at least one summary")
	}
}

func TestReportRepo_NotFound(t *testing.T) {
	r := testRepo(t)
	if _, err := r.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReportRepo_SaveWithoutRun(t *testing.T) {
	r := &ReportRepo{}
	if err := r.Save(context.Background(), &domain.Report{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
