package pool

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/payload"
	"github.com/shaiso/tspbatch/internal/shm"
)

func squareInstance() *domain.Instance {
	return &domain.Instance{
		CityNum:     4,
		Coordinates: []float64{0, 0, 1, 0, 1, 1, 0, 1},
		OptimalTour: []int{0, 1, 2, 3},
		Heatmap:     make([]float64, 16),
	}
}

func newJob(t *testing.T, arena *shm.Arena, index int, solverName string) (*payload.Payload, *Job) {
	t.Helper()
	p, err := payload.Write(arena, index, squareInstance())
	if err != nil {
		t.Fatalf("write payload: %v", err)
	}
	params := domain.DefaultSolverParams()
	params.Solver = solverName
	params.MaxDepth = 2
	params.ParamT = 0.001
	return p, &Job{
		TaskID:     uuid.New(),
		Index:      index,
		Descriptor: p.Descriptor(),
		Params:     params,
	}
}

func newArena(t *testing.T) *shm.Arena {
	t.Helper()
	arena, err := shm.NewArena(shm.ArenaConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("arena: %v", err)
	}
	return arena
}

func execSpawner() *ExecSpawner {
	return &ExecSpawner{
		Path:   os.Args[0],
		Args:   []string{"-test.run=^$"},
		Env:    []string{helperEnv + "=1"},
		Stderr: io.Discard,
	}
}

func startPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p := New(cfg)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func runJob(t *testing.T, p *Pool, job *Job) Completion {
	t.Helper()
	replies := make(chan Completion, 1)
	if err := p.Submit(context.Background(), job, replies); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case c := <-replies:
		return c
	case <-time.After(30 * time.Second):
		t.Fatal("no completion")
		return Completion{}
	}
}

func TestPool_InProcess_CompletesAll(t *testing.T) {
	arena := newArena(t)
	p := startPool(t, Config{Workers: 2, Spawner: &InProcessSpawner{Registry: testRegistry()}})

	const n = 6
	replies := make(chan Completion, n)
	var payloads []*payload.Payload
	for i := 0; i < n; i++ {
		pl, job := newJob(t, arena, 10+i, "local")
		payloads = append(payloads, pl)
		if err := p.Submit(context.Background(), job, replies); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		c := <-replies
		if !c.Succeeded() {
			t.Errorf("index %d failed: %v", c.Index, c.Err)
			continue
		}
		if seen[c.Index] {
			t.Errorf("index %d completed twice", c.Index)
		}
		seen[c.Index] = true
		if c.Result.OverallTime < c.Result.SolveTime {
			t.Errorf("overall time %v < solve time %v", c.Result.OverallTime, c.Result.SolveTime)
		}
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct completions, got %d", n, len(seen))
	}

	for _, pl := range payloads {
		if err := pl.Release(); err != nil {
			t.Errorf("release: %v", err)
		}
	}
}

func TestPool_InProcess_DeadlineRespawns(t *testing.T) {
	arena := newArena(t)
	p := startPool(t, Config{
		Workers:     1,
		Spawner:     &InProcessSpawner{Registry: testRegistry()},
		TaskTimeout: 200 * time.Millisecond,
	})

	pl, job := newJob(t, arena, 0, "block")
	c := runJob(t, p, job)
	if !errors.Is(c.Err, ErrTaskDeadline) || c.Status != domain.TaskStatusFailed {
		t.Fatalf("expected deadline failure, got %s %v", c.Status, c.Err)
	}
	if len(c.Handles) != 3 {
		t.Errorf("expected attempted handles, got %v", c.Handles)
	}
	if err := pl.Release(); err != nil {
		t.Errorf("release: %v", err)
	}

	// Слот обслуживает следующий task новым воркером.
	pl, job = newJob(t, arena, 1, "reference")
	defer pl.Release()
	if c := runJob(t, p, job); !c.Succeeded() {
		t.Errorf("task after respawn failed: %v", c.Err)
	}
}

func TestPool_Exec_WorkerCrash(t *testing.T) {
	arena := newArena(t)
	p := startPool(t, Config{Workers: 1, Spawner: execSpawner()})

	pl, job := newJob(t, arena, 5, "crash")
	c := runJob(t, p, job)
	if !errors.Is(c.Err, ErrWorkerDied) {
		t.Fatalf("expected ErrWorkerDied, got %v", c.Err)
	}
	if c.Index != 5 {
		t.Errorf("expected index 5, got %d", c.Index)
	}
	if len(c.Handles) != 3 {
		t.Errorf("expected descriptor handles on crash, got %v", c.Handles)
	}
	if c.StartedAt.IsZero() || c.StartedAt.Before(c.SubmittedAt) {
		t.Errorf("bad start time: submitted %v, started %v", c.SubmittedAt, c.StartedAt)
	}

	// Упавший процесс не удалил сегменты — это делает владелец.
	if err := pl.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if s := arena.Stats(); s.ReleasedByOwner != 3 {
		t.Errorf("expected owner releases, got %+v", s)
	}

	pl, job = newJob(t, arena, 6, "local")
	defer pl.Release()
	if c := runJob(t, p, job); !c.Succeeded() {
		t.Errorf("task after crash failed: %v", c.Err)
	}
}

func TestPool_Exec_HungWorkerKilled(t *testing.T) {
	arena := newArena(t)
	p := startPool(t, Config{
		Workers:     1,
		Spawner:     execSpawner(),
		TaskTimeout: 300 * time.Millisecond,
	})

	pl, job := newJob(t, arena, 0, "hang")
	defer pl.Release()

	started := time.Now()
	c := runJob(t, p, job)
	if !errors.Is(c.Err, ErrTaskDeadline) {
		t.Fatalf("expected ErrTaskDeadline, got %v", c.Err)
	}
	if time.Since(started) > 10*time.Second {
		t.Errorf("deadline took too long: %s", time.Since(started))
	}
}

func TestPool_Exec_CancelReportsHandles(t *testing.T) {
	arena := newArena(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(Config{Workers: 1, Spawner: execSpawner()})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(p.Shutdown)

	pl, job := newJob(t, arena, 4, "hang")
	defer pl.Release()

	replies := make(chan Completion, 1)
	if err := p.Submit(context.Background(), job, replies); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.AfterFunc(200*time.Millisecond, cancel)

	select {
	case c := <-replies:
		if !errors.Is(c.Err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", c.Err)
		}
		if c.Status != domain.TaskStatusFailed {
			t.Errorf("expected FAILED, got %s", c.Status)
		}
		if len(c.Handles) != 3 {
			t.Errorf("expected descriptor handles on cancel, got %v", c.Handles)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("no completion after cancel")
	}
}

func TestPool_Exec_SolverErrorReleasesBuffers(t *testing.T) {
	arena := newArena(t)
	p := startPool(t, Config{Workers: 1, Spawner: execSpawner()})

	pl, job := newJob(t, arena, 2, "local")
	job.Params.MaxDepth = 3

	c := runJob(t, p, job)
	if c.Status != domain.TaskStatusFailed || c.Err == nil || !strings.Contains(c.Err.Error(), "max_depth") {
		t.Fatalf("expected max_depth failure, got %+v", c)
	}
	if !c.Released {
		t.Error("worker should release buffers on solver error")
	}
	if err := pl.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if s := arena.Stats(); s.ReleasedByPeer != 3 {
		t.Errorf("expected peer releases, got %+v", s)
	}
}

func TestPool_Lifecycle(t *testing.T) {
	p := New(Config{Workers: 1, Spawner: &InProcessSpawner{}})

	replies := make(chan Completion, 1)
	if err := p.Submit(context.Background(), &Job{}, replies); !errors.Is(err, ErrPoolNotStarted) {
		t.Errorf("expected ErrPoolNotStarted, got %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Shutdown()
	p.Shutdown()

	if err := p.Submit(context.Background(), &Job{}, replies); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}
