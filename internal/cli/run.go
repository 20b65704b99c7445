package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/tspbatch/internal/config"
	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/legacy"
	"github.com/shaiso/tspbatch/internal/orchestrator"
	"github.com/shaiso/tspbatch/internal/scheduler"
)

// runFlags — флаги run/legacy. Значение флага применяется поверх
// конфигурации, только если флаг задан явно.
type runFlags struct {
	// Набор данных
	concorde string
	heatmaps string
	limit    int

	// Выполнение
	backend     string
	workers     int
	batchSize   int
	taskTimeout time.Duration
	inProcess   bool
	shmDir      string

	// Legacy
	executable string
	keepFiles  bool

	// Расписание
	schedule string
	timezone string

	reportPath string

	params domain.SolverParams
}

// NewRunCmd создаёт команду run: набор данных через пул воркеров.
func NewRunCmd(appFn AppFunc) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve a dataset of instances",
		Long: `Solve every instance of a Concorde-format dataset and print a report
aligned to input order.

With --schedule the dataset is re-read and solved on every cron tick,
the worker pool is kept alive between sweeps.`,
		Example: `  tspbatch run --concorde tsp500.txt --heatmaps heatmaps/ --workers 8
  tspbatch run --concorde tsp500.txt --schedule "0 3 * * *" --timezone Europe/Moscow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.execute(cmd, appFn, orchestrator.Backend(f.backend))
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.backend, "backend", string(orchestrator.BackendShm), "Transport backend (shm, legacy)")

	return cmd
}

// NewLegacyCmd создаёт команду legacy: тот же run через файлы и внешний
// исполняемый solver.
func NewLegacyCmd(appFn AppFunc) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:     "legacy",
		Short:   "Solve a dataset through the external solver executable",
		Example: `  tspbatch legacy --concorde tsp500.txt --heatmaps heatmaps/ --executable ./MCTS_solver`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.execute(cmd, appFn, orchestrator.BackendLegacy)
		},
	}

	f.register(cmd)

	return cmd
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()

	fs.StringVar(&f.concorde, "concorde", "", "Concorde-format instance file (required)")
	fs.StringVar(&f.heatmaps, "heatmaps", "", "Directory with heatmap_<i>.txt files")
	fs.IntVar(&f.limit, "limit", 0, "Solve only the first N instances")

	fs.IntVar(&f.workers, "workers", 0, "Worker pool size")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Instances per batch (default 2 x workers)")
	fs.DurationVar(&f.taskTimeout, "task-timeout", 0, "Per-task deadline, 0 for none")
	fs.BoolVar(&f.inProcess, "in-process", false, "Run workers as goroutines instead of processes")
	fs.StringVar(&f.shmDir, "shm-dir", "", "Directory for shared memory segments")

	fs.StringVar(&f.executable, "executable", "", "External solver executable (legacy backend)")
	fs.BoolVar(&f.keepFiles, "keep-files", false, "Keep the legacy work directory")

	fs.StringVar(&f.schedule, "schedule", "", "Cron expression for recurring sweeps")
	fs.StringVar(&f.timezone, "timezone", "UTC", "Timezone of --schedule")

	fs.StringVar(&f.reportPath, "report-file", "", "Also write the JSON report to this file")

	defaults := domain.DefaultSolverParams()
	fs.StringVar(&f.params.Solver, "solver", defaults.Solver, "Solver name in the worker registry (local, reference)")
	fs.Float64Var(&f.params.Alpha, "alpha", defaults.Alpha, "Edge potential weight")
	fs.Float64Var(&f.params.Beta, "beta", defaults.Beta, "Back-propagation weight")
	fs.Float64Var(&f.params.ParamH, "param-h", defaults.ParamH, "Sampled actions factor")
	fs.Float64Var(&f.params.ParamT, "param-t", defaults.ParamT, "Search time per city, seconds")
	fs.IntVar(&f.params.MaxCandidateNum, "max-candidate-num", defaults.MaxCandidateNum, "Candidate list size per city")
	fs.IntVar(&f.params.CandidateUseHeatmap, "candidate-use-heatmap", defaults.CandidateUseHeatmap, "1: rank candidates by heatmap, 0: by distance")
	fs.IntVar(&f.params.MaxDepth, "max-depth", defaults.MaxDepth, "Search depth, 2 x max-depth must not exceed city count")
	fs.BoolVar(&f.params.LogTrace, "log-trace", false, "Record (length, time) samples during search")
	fs.BoolVar(&f.params.Debug, "debug", false, "Verbose worker logging")

	cmd.MarkFlagRequired("concorde")
}

// apply переносит явно заданные флаги в cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("workers") {
		cfg.Pool.Workers = f.workers
	}
	if changed("batch-size") {
		cfg.Batching.Size = f.batchSize
	}
	if changed("task-timeout") {
		cfg.Pool.TaskTimeout = f.taskTimeout
	}
	if changed("in-process") {
		cfg.Pool.InProcess = f.inProcess
	}
	if changed("shm-dir") {
		cfg.Shm.Dir = f.shmDir
	}
	if changed("executable") {
		cfg.Legacy.Executable = f.executable
	}
	if changed("keep-files") {
		cfg.Legacy.KeepFiles = f.keepFiles
	}

	p := &cfg.Solver
	if changed("solver") {
		p.Solver = f.params.Solver
	}
	if changed("alpha") {
		p.Alpha = f.params.Alpha
	}
	if changed("beta") {
		p.Beta = f.params.Beta
	}
	if changed("param-h") {
		p.ParamH = f.params.ParamH
	}
	if changed("param-t") {
		p.ParamT = f.params.ParamT
	}
	if changed("max-candidate-num") {
		p.MaxCandidateNum = f.params.MaxCandidateNum
	}
	if changed("candidate-use-heatmap") {
		p.CandidateUseHeatmap = f.params.CandidateUseHeatmap
	}
	if changed("max-depth") {
		p.MaxDepth = f.params.MaxDepth
	}
	if changed("log-trace") {
		p.LogTrace = f.params.LogTrace
	}
	if changed("debug") {
		p.Debug = f.params.Debug
	}
}

func (f *runFlags) execute(cmd *cobra.Command, appFn AppFunc, backend orchestrator.Backend) error {
	app, err := appFn(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config
	f.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if f.schedule != "" {
		if err := scheduler.ValidateCronExpr(f.schedule); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Набор данных проверяется до открытия arena и пула.
	instances, err := f.load(ctx, cfg)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx, cfg, backend, app.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	solve := func(ctx context.Context, instances []*domain.Instance) error {
		report, err := sess.Runner.Run(ctx, instances, cfg.Solver, orchestrator.Options{Backend: backend})
		if report != nil {
			app.Out.Report(report)
			if f.reportPath != "" {
				if werr := writeReportFile(f.reportPath, report); werr != nil {
					app.Logger.Warn("failed to write report file", "path", f.reportPath, "error", werr)
				}
			}
		}
		return err
	}

	if f.schedule == "" {
		return solve(ctx, instances)
	}

	// Каждый tick перечитывает набор данных.
	sweep := func(ctx context.Context) error {
		instances, err := f.load(ctx, cfg)
		if err != nil {
			return err
		}
		return solve(ctx, instances)
	}

	sched, err := scheduler.New(scheduler.Config{
		Expr:     f.schedule,
		Timezone: f.timezone,
		Job:      sweep,
		Logger:   app.Logger,
	})
	if err != nil {
		return err
	}
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// load читает набор данных и проверяет его против параметров solver'а.
func (f *runFlags) load(ctx context.Context, cfg config.Config) ([]*domain.Instance, error) {
	instances, err := legacy.LoadDataset(ctx, f.concorde, f.heatmaps, f.limit, cfg.Legacy.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if err := orchestrator.Validate(instances, cfg.Solver); err != nil {
		return nil, err
	}
	return instances, nil
}

func writeReportFile(path string, report *domain.Report) error {
	data, err := json.MarshalIndent(reportView{Report: report, Columns: report.Columns()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
