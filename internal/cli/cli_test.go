package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/config"
	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/mq"
	"github.com/shaiso/tspbatch/internal/orchestrator"
	"github.com/shaiso/tspbatch/internal/scheduler"
	"github.com/shaiso/tspbatch/internal/shm"
)

// writeDataset пишет Concorde-файл: count инстансов по n городов на окружности.
func writeDataset(t *testing.T, count, n int) string {
	t.Helper()

	var b strings.Builder
	for k := 0; k < count; k++ {
		for i := 0; i < n; i++ {
			angle := 2 * math.Pi * float64(i) / float64(n)
			fmt.Fprintf(&b, "%g %g ", float64(k+1)*math.Cos(angle), float64(k+1)*math.Sin(angle))
		}
		b.WriteString("output")
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&b, " %d", i)
		}
		b.WriteString("\n")
	}

	path := filepath.Join(t.TempDir(), "tsp.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// isolateEnv убирает внешние сервисы из окружения теста.
func isolateEnv(t *testing.T) {
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvRabbitMQURL, "")
	t.Setenv(config.EnvMetricsAddr, "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_InProcess(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 3, 8)

	out, err := execute(t, "run", "--json",
		"--concorde", dataset,
		"--shm-dir", t.TempDir(),
		"--in-process",
		"--workers", "2",
		"--param-t", "0.001",
		"--max-depth", "2",
		"--candidate-use-heatmap", "0",
	)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var got struct {
		Run      domain.Run       `json:"run"`
		Outcomes []domain.Outcome `json:"outcomes"`
		Stats    domain.Stats     `json:"stats"`
		Columns  domain.Columns   `json:"columns"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}

	if got.Run.Status != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", got.Run.Status)
	}
	if got.Stats.Total != 3 || got.Stats.Present != 3 {
		t.Errorf("unexpected stats: %+v", got.Stats)
	}
	for i, o := range got.Outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
	}
	if len(got.Columns.Gaps) != 3 {
		t.Errorf("expected 3 gap values, got %d", len(got.Columns.Gaps))
	}
}

func TestRun_ReportFile(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 1, 6)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	out, err := execute(t, "run",
		"--concorde", dataset,
		"--shm-dir", t.TempDir(),
		"--in-process",
		"--workers", "1",
		"--param-t", "0.001",
		"--max-depth", "2",
		"--report-file", reportPath,
	)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "INDEX") || !strings.Contains(out, "PRESENT") {
		t.Errorf("expected a table, got:\n%s", out)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"columns"`)) {
		t.Errorf("report file has no columns: %s", data)
	}
}

func TestRun_RejectsMaxDepth(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 2, 8)

	_, err := execute(t, "run",
		"--concorde", dataset,
		"--shm-dir", t.TempDir(),
		"--in-process",
		"--workers", "1",
		"--max-depth", "5",
	)
	if !errors.Is(err, orchestrator.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if !errors.Is(err, domain.ErrMaxDepthTooLarge) {
		t.Errorf("expected ErrMaxDepthTooLarge, got %v", err)
	}
}

func TestRun_ValidatesBeforeArena(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 2, 10)
	missing := filepath.Join(t.TempDir(), "absent")

	_, err := execute(t, "run",
		"--concorde", dataset,
		"--shm-dir", missing,
		"--in-process",
		"--workers", "2",
		"--max-depth", "6",
	)
	if !errors.Is(err, domain.ErrMaxDepthTooLarge) {
		t.Errorf("expected ErrMaxDepthTooLarge, got %v", err)
	}

	// Корректный вход с той же директорией падает уже на arena.
	_, err = execute(t, "run",
		"--concorde", dataset,
		"--shm-dir", missing,
		"--in-process",
		"--workers", "2",
		"--max-depth", "5",
	)
	if !errors.Is(err, shm.ErrCreate) {
		t.Errorf("expected shm.ErrCreate, got %v", err)
	}
}

func TestLegacy_ValidatesBeforeExecutable(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 1, 6)

	_, err := execute(t, "legacy", "--concorde", dataset, "--max-depth", "4")
	if !errors.Is(err, domain.ErrMaxDepthTooLarge) {
		t.Errorf("expected ErrMaxDepthTooLarge, got %v", err)
	}
}

func TestRun_InvalidSchedule(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 1, 6)

	_, err := execute(t, "run", "--concorde", dataset, "--schedule", "every day")
	if !errors.Is(err, scheduler.ErrInvalidCron) {
		t.Errorf("expected ErrInvalidCron, got %v", err)
	}
}

func TestRun_RequiresConcorde(t *testing.T) {
	isolateEnv(t)
	if _, err := execute(t, "run"); err == nil {
		t.Error("expected error without --concorde")
	}
}

func TestLegacy_RequiresExecutable(t *testing.T) {
	isolateEnv(t)
	dataset := writeDataset(t, 1, 6)

	_, err := execute(t, "legacy", "--concorde", dataset, "--max-depth", "2")
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunFlags_Apply(t *testing.T) {
	f := &runFlags{}
	cmd := &cobra.Command{Use: "run"}
	f.register(cmd)

	if err := cmd.ParseFlags([]string{"--workers", "3", "--alpha", "2.5", "--log-trace"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Solver.Beta = 42
	cfg.Batching.Size = 7
	f.apply(cmd, &cfg)

	if cfg.Pool.Workers != 3 {
		t.Errorf("workers: expected 3, got %d", cfg.Pool.Workers)
	}
	if cfg.Solver.Alpha != 2.5 {
		t.Errorf("alpha: expected 2.5, got %v", cfg.Solver.Alpha)
	}
	if !cfg.Solver.LogTrace {
		t.Error("log_trace not applied")
	}
	// Незаданные флаги не затирают конфигурацию.
	if cfg.Solver.Beta != 42 {
		t.Errorf("beta overwritten: %v", cfg.Solver.Beta)
	}
	if cfg.Batching.Size != 7 {
		t.Errorf("batch size overwritten: %d", cfg.Batching.Size)
	}
}

func TestOutput_Report(t *testing.T) {
	run := domain.NewRun("shm", 2, 1, domain.DefaultSolverParams())
	run.MarkSucceeded()
	report := &domain.Report{
		Run: run,
		Outcomes: []domain.Outcome{
			domain.Present(0, &domain.Result{ConcordeDistance: 10, MCTSDistance: 11, Gap: 0.1, SolveTime: 1.5, OverallTime: 1.6}),
			domain.Absent(1, "worker died"),
		},
		Stats: domain.Stats{Total: 2, Present: 1, Absent: 1, MeanGap: 0.1},
	}

	var out, errOut bytes.Buffer
	NewOutput(false, &out, &errOut).Report(report)

	table := out.String()
	for _, want := range []string{"INDEX", "PRESENT", "10.0000", "11.0000", "10.000%", "ABSENT", "worker died"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}
	if !strings.Contains(errOut.String(), "1/2 present") {
		t.Errorf("unexpected summary: %s", errOut.String())
	}
}

func TestOutput_Event(t *testing.T) {
	runID := uuid.New()
	msg := mq.NewMessage(mq.MessageTypeBatchCompleted, mq.BatchCompletedPayload{
		RunID: runID, Batch: 1, Lo: 4, Hi: 8, Present: 3, Absent: 1, Duration: 2,
	})

	var out bytes.Buffer
	o := NewOutput(false, &out, &out)
	if err := o.Event(msg, msg.Payload); err != nil {
		t.Fatalf("event: %v", err)
	}

	line := out.String()
	for _, want := range []string{"batch.completed", runID.String(), "[4,8)", "present=3", "absent=1"} {
		if !strings.Contains(line, want) {
			t.Errorf("event line missing %q: %s", want, line)
		}
	}
}

// failingWriter — stdout, закрытый на другой стороне.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestPrintEvents(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	known := mq.NewMessage(mq.MessageTypeRunCompleted, mq.RunCompletedPayload{RunID: uuid.New(), Status: domain.RunStatusSucceeded})

	// Payload после брокера — map, как у настоящей доставки.
	decode := func(m *mq.Message) mq.Message {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		var got mq.Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		return got
	}

	t.Run("printed", func(t *testing.T) {
		var out bytes.Buffer
		err := printEvents(NewOutput(true, &out, io.Discard), quiet)(context.Background(), &mq.Delivery{Message: decode(known)})
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if !strings.Contains(out.String(), `"run.completed"`) {
			t.Errorf("unexpected output: %s", out.String())
		}
	})

	t.Run("unknown event rejected", func(t *testing.T) {
		err := printEvents(NewOutput(false, io.Discard, io.Discard), quiet)(context.Background(),
			&mq.Delivery{Message: decode(mq.NewMessage("task.ready", nil))})
		if !errors.Is(err, mq.ErrReject) || !errors.Is(err, mq.ErrUnknownEvent) {
			t.Errorf("expected rejection of unknown event, got %v", err)
		}
	})

	t.Run("write failure stops", func(t *testing.T) {
		for _, jsonMode := range []bool{false, true} {
			err := printEvents(NewOutput(jsonMode, failingWriter{}, io.Discard), quiet)(context.Background(),
				&mq.Delivery{Message: decode(known)})
			if err == nil || errors.Is(err, mq.ErrReject) {
				t.Errorf("json=%v: expected requeueing error, got %v", jsonMode, err)
			}
		}
	})
}

func TestWatch_RejectsUnknownEventFlag(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "watch", "--event", "task.ready")
	if !errors.Is(err, mq.ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}
