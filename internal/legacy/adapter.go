package legacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/tspbatch/internal/domain"
)

// Default configuration values.
const (
	defaultWorkDir     = "/dev/shm"
	defaultParallelism = 1
)

// Adapter запускает внешний исполняемый solver через файлы.
//
// Для каждого инстанса batch'а:
//   - пишет concorde_<i>.txt и heatmap_<i>.txt во временный каталог
//   - запускает исполняемый файл с позиционными аргументами
//   - разбирает result_<i>.txt
//
// Ненулевой код выхода или отсутствующий файл результата — отказ только
// этого инстанса. Если число найденных результатов не совпадает с числом
// успешных запусков, batch повреждён (ErrResultCountMismatch).
type Adapter struct {
	executable  string
	workDir     string
	keepFiles   bool
	parallelism int
	logger      *slog.Logger
}

// Config — конфигурация Adapter.
type Config struct {
	// Executable — путь к исполняемому файлу solver'а.
	Executable string

	// WorkDir — где создавать временный каталог (default: /dev/shm).
	WorkDir string

	// KeepFiles — не удалять временный каталог (для отладки).
	KeepFiles bool

	// Parallelism — число одновременных запусков (default: 1).
	Parallelism int

	// Logger
	Logger *slog.Logger
}

// New создаёт Adapter.
func New(cfg Config) *Adapter {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = defaultWorkDir
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		executable:  cfg.Executable,
		workDir:     workDir,
		keepFiles:   cfg.KeepFiles,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Parallelism возвращает число одновременных запусков.
func (a *Adapter) Parallelism() int {
	return a.parallelism
}

// files — пути файлов одного инстанса.
type files struct {
	concorde string
	heatmap  string
	result   string
}

func instanceFiles(dir string, i int) files {
	return files{
		concorde: filepath.Join(dir, fmt.Sprintf("concorde_%d.txt", i)),
		heatmap:  filepath.Join(dir, fmt.Sprintf("heatmap_%d.txt", i)),
		result:   filepath.Join(dir, fmt.Sprintf("result_%d.txt", i)),
	}
}

// ExecuteBatch решает batch инстансов. offset — глобальный индекс первого.
//
// Возвращает по Outcome на каждый инстанс в порядке instances.
func (a *Adapter) ExecuteBatch(ctx context.Context, offset int, instances []*domain.Instance, params domain.SolverParams) ([]domain.Outcome, error) {
	if a.executable == "" {
		return nil, ErrNoExecutable
	}
	if len(instances) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp(a.workDir, "tspbatch-legacy-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	if a.keepFiles {
		a.logger.Info("keeping legacy work dir", "dir", dir)
	} else {
		defer os.RemoveAll(dir)
	}

	if err := a.writeFiles(ctx, dir, instances); err != nil {
		return nil, err
	}

	runErrs, elapsed, err := a.runAll(ctx, dir, instances, params)
	if err != nil {
		return nil, err
	}

	return a.collect(dir, offset, runErrs, elapsed)
}

// writeFiles пишет входные файлы всех инстансов параллельно.
func (a *Adapter) writeFiles(ctx context.Context, dir string, instances []*domain.Instance) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)

	for i, in := range instances {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := instanceFiles(dir, i)

			dist := in.Distances
			if in.Geometry() == domain.GeometryCoordinates {
				dist = domain.EuclideanDistances(in.Coordinates, in.CityNum)
			}
			if err := writeFile(f.concorde, func(w *os.File) error {
				return WriteConcordeFile(w, dist, in.OptimalTour)
			}); err != nil {
				return err
			}
			return writeFile(f.heatmap, func(w *os.File) error {
				return WriteHeatmapFile(w, in.Heatmap, in.CityNum)
			})
		})
	}
	return g.Wait()
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Args возвращает позиционные аргументы исполняемого файла для одного инстанса.
// Порядок аргументов — ABI исполняемого файла.
func Args(resultPath, concordePath, heatmapPath string, cityNum int, p domain.SolverParams) []string {
	return []string{
		"0",
		resultPath,
		concordePath,
		strconv.Itoa(cityNum),
		"1",
		heatmapPath,
		formatFloat(p.Alpha),
		formatFloat(p.Beta),
		formatFloat(p.ParamH),
		formatFloat(p.ParamT),
		strconv.Itoa(p.MaxCandidateNum),
		strconv.Itoa(p.CandidateUseHeatmap),
		strconv.Itoa(p.MaxDepth),
	}
}

// runAll запускает исполняемый файл для каждого инстанса.
// Ошибка отдельного запуска возвращается в runErrs и batch не прерывает.
func (a *Adapter) runAll(ctx context.Context, dir string, instances []*domain.Instance, params domain.SolverParams) ([]error, []time.Duration, error) {
	runErrs := make([]error, len(instances))
	elapsed := make([]time.Duration, len(instances))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)

	for i, in := range instances {
		g.Go(func() error {
			f := instanceFiles(dir, i)
			started := time.Now()

			cmd := exec.CommandContext(gctx, a.executable,
				Args(f.result, f.concorde, f.heatmap, in.CityNum, params)...)
			out, err := cmd.CombinedOutput()
			elapsed[i] = time.Since(started)

			if err := gctx.Err(); err != nil {
				return err
			}
			if err != nil {
				a.logger.Warn("legacy solver failed",
					"index", i,
					"error", err,
					"output", truncate(string(out), 512),
				)
				runErrs[i] = fmt.Errorf("%w: %v", ErrExecutableFailed, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return runErrs, elapsed, nil
}

// collect разбирает файлы результатов.
func (a *Adapter) collect(dir string, offset int, runErrs []error, elapsed []time.Duration) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, len(runErrs))
	perFile := make([][]Record, len(runErrs))
	expected, found := 0, 0

	for i, runErr := range runErrs {
		index := offset + i
		if runErr != nil {
			outcomes[i] = domain.Absent(index, runErr.Error())
			continue
		}

		content, err := os.ReadFile(instanceFiles(dir, i).result)
		if errors.Is(err, os.ErrNotExist) {
			outcomes[i] = domain.Absent(index, "result file missing")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read result %d: %w", i, err)
		}

		expected++
		perFile[i] = ParseResults(string(content))
		found += len(perFile[i])
	}

	if found != expected {
		return nil, fmt.Errorf("%w: found %d results for %d instances", ErrResultCountMismatch, found, expected)
	}

	for i, records := range perFile {
		if runErrs[i] != nil || outcomes[i].Status == domain.OutcomeAbsent {
			continue
		}
		if len(records) != 1 {
			return nil, fmt.Errorf("%w: result file %d has %d results", ErrResultCountMismatch, i, len(records))
		}
		res := records[0].Result()
		res.OverallTime = elapsed[i].Seconds()
		outcomes[i] = domain.Present(offset+i, res)
	}

	return outcomes, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
