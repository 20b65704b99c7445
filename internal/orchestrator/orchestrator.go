package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/tspbatch/internal/aggregate"
	"github.com/shaiso/tspbatch/internal/batcher"
	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/legacy"
	"github.com/shaiso/tspbatch/internal/mq"
	"github.com/shaiso/tspbatch/internal/payload"
	"github.com/shaiso/tspbatch/internal/pool"
	"github.com/shaiso/tspbatch/internal/shm"
	"github.com/shaiso/tspbatch/internal/telemetry"
)

// Default configuration values.
const (
	defaultMemoryBudget = 1 << 30
	eventTimeout        = 5 * time.Second
)

// Backend — транспорт инстансов до solver'а.
type Backend string

const (
	// BackendShm — shared memory + пул воркер-процессов.
	BackendShm Backend = "shm"

	// BackendLegacy — файлы + внешний исполняемый файл.
	BackendLegacy Backend = "legacy"
)

// EventPublisher — получатель событий завершения batch'ей и runs.
// Реализуется *mq.Publisher.
type EventPublisher interface {
	PublishBatchCompleted(ctx context.Context, p mq.BatchCompletedPayload) error
	PublishRunCompleted(ctx context.Context, p mq.RunCompletedPayload) error
}

// ReportStore сохраняет итоговые отчёты. Реализуется *repo.ReportRepo.
type ReportStore interface {
	Save(ctx context.Context, report *domain.Report) error
}

// Runner — BatchRunner: ведёт run от проверки входа до итогового отчёта.
//
// Batch'и выполняются строго последовательно. Внутри batch'а:
//   - размещение буферов всех инстансов
//   - отправка tasks в пул
//   - ожидание всех completions
//   - освобождение буферов и проверка арены на утечки
//
// Отказ отдельного инстанса batch не прерывает; нарушение инварианта
// (утечка буферов, двойное освобождение, расхождение числа результатов) прерывает run.
type Runner struct {
	// Backends
	pool   *pool.Pool
	arena  *shm.Arena
	legacy *legacy.Adapter

	// Events & persistence
	publisher EventPublisher
	store     ReportStore

	// Batching
	memoryBudget int64
	batchSize    int

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Config — конфигурация Runner.
type Config struct {
	// Shared memory backend: запущенный пул и арена сегментов.
	Pool  *pool.Pool
	Arena *shm.Arena

	// Legacy backend.
	Legacy *legacy.Adapter

	// Publisher — события batch.completed / run.completed (опционально).
	Publisher EventPublisher

	// Store — сохранение отчёта (опционально).
	Store ReportStore

	// MemoryBudget — предел суммарного размера буферов batch'а
	// (default: 1 GiB, < 0 — без предела).
	MemoryBudget int64

	// BatchSize — инстансов в batch'е (default: 2 × workers).
	BatchSize int

	// Logger
	Logger *slog.Logger

	// Metrics (опционально)
	Metrics *telemetry.Metrics
}

// Options — параметры одного run.
type Options struct {
	// Backend (default: shm).
	Backend Backend

	// BatchSize переопределяет Config.BatchSize, если > 0.
	BatchSize int
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	budget := cfg.MemoryBudget
	if budget == 0 {
		budget = defaultMemoryBudget
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		pool:         cfg.Pool,
		arena:        cfg.Arena,
		legacy:       cfg.Legacy,
		publisher:    cfg.Publisher,
		store:        cfg.Store,
		memoryBudget: budget,
		batchSize:    cfg.BatchSize,
		logger:       logger,
		metrics:      cfg.Metrics,
	}
}

// Run решает instances и возвращает отчёт длины len(instances),
// выровненный по входному порядку.
//
// Ошибка входа возвращается до размещения первого буфера, отчёт при этом nil.
// При нарушении инварианта batch'а возвращается отчёт со статусом FAILED
// (позиции необработанных batch'ей — ABSENT) и ошибка.
func (r *Runner) Run(ctx context.Context, instances []*domain.Instance, params domain.SolverParams, opts Options) (*domain.Report, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendShm
	}

	workers, err := r.workers(backend)
	if err != nil {
		return nil, err
	}

	if err := Validate(instances, params); err != nil {
		return nil, err
	}

	batchSize := r.batchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	sizes := make([]int64, len(instances))
	for i, in := range instances {
		sizes[i] = in.EstimatedBytes()
	}
	ranges := batcher.PartitionSizes(sizes, workers, r.memoryBudget, batchSize)

	run := domain.NewRun(string(backend), len(instances), workers, params)
	run.Batches = ranges
	collector := aggregate.NewCollector(len(instances))

	logger := telemetry.WithRunID(r.logger, run.ID.String())
	logger.Info("run started",
		"backend", backend,
		"instances", len(instances),
		"workers", workers,
		"batches", len(ranges),
	)

	runErr := r.runBatches(ctx, logger, run, ranges, instances, params, collector)

	switch {
	case runErr == nil:
		run.MarkSucceeded()
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.MarkCancelled()
	default:
		run.MarkFailed(runErr.Error())
	}

	report := collector.Report(run)
	r.finish(logger, report)
	return report, runErr
}

func (r *Runner) workers(backend Backend) (int, error) {
	switch backend {
	case BackendShm:
		if r.pool == nil || r.arena == nil {
			return 0, fmt.Errorf("%w: %s needs a pool and an arena", ErrBackendUnavailable, backend)
		}
		return r.pool.Workers(), nil
	case BackendLegacy:
		if r.legacy == nil {
			return 0, fmt.Errorf("%w: %s needs an executable", ErrBackendUnavailable, backend)
		}
		return r.legacy.Parallelism(), nil
	default:
		return 0, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, backend)
	}
}

// Validate проверяет параметры и все инстансы, включая 2*max_depth <= city_num.
func Validate(instances []*domain.Instance, params domain.SolverParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	for i, in := range instances {
		if in == nil {
			return fmt.Errorf("%w: instance %d is nil", ErrInvalidInput, i)
		}
		if err := in.Validate(); err != nil {
			return fmt.Errorf("%w: instance %d: %w", ErrInvalidInput, i, err)
		}
		if err := params.CheckDepth(in.CityNum); err != nil {
			return fmt.Errorf("%w: instance %d: %w", ErrInvalidInput, i, err)
		}
	}
	return nil
}

func (r *Runner) runBatches(ctx context.Context, logger *slog.Logger, run *domain.Run, ranges []domain.BatchRange,
	instances []*domain.Instance, params domain.SolverParams, collector *aggregate.Collector) error {

	for number, br := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		blog := telemetry.WithBatch(logger, number, br.Lo, br.Hi)
		started := time.Now()

		var err error
		if run.Backend == string(BackendLegacy) {
			err = r.runLegacyBatch(ctx, br, instances, params, collector)
		} else {
			err = r.runShmBatch(ctx, blog, run, number, br, instances, params, collector)
		}
		elapsed := time.Since(started)

		status := "completed"
		if err != nil {
			status = "failed"
		}
		r.metrics.ObserveBatch(status, elapsed)

		present, absent := countRange(collector, br)
		blog.Info("batch "+status,
			"present", present,
			"absent", absent,
			"duration", elapsed,
		)
		r.publishBatch(blog, mq.BatchCompletedPayload{
			RunID:    run.ID,
			Batch:    number,
			Lo:       br.Lo,
			Hi:       br.Hi,
			Present:  present,
			Absent:   absent,
			Duration: elapsed.Seconds(),
			Error:    errString(err),
		})

		if err != nil {
			return fmt.Errorf("batch %d %s: %w", number, br, err)
		}
	}
	return nil
}

// runShmBatch выполняет один batch через shared memory и пул.
//
// Возвращает ошибку только при нарушении инварианта или отмене ctx;
// отказы отдельных инстансов записываются в collector как ABSENT.
func (r *Runner) runShmBatch(ctx context.Context, logger *slog.Logger, run *domain.Run, number int, br domain.BatchRange,
	instances []*domain.Instance, params domain.SolverParams, collector *aggregate.Collector) error {

	state := NewBatchState(run.ID, number, br)

	// 1. Размещение буферов. Ошибка транспорта — отказ только этого инстанса.
	for index := br.Lo; index < br.Hi; index++ {
		p, err := payload.Write(r.arena, index, instances[index])
		if err != nil {
			telemetry.WithIndex(logger, index).Warn("failed to write payload", "error", err)
			if err := collector.RecordAbsent(index, err.Error()); err != nil {
				return r.abortBatch(logger, state, err)
			}
			continue
		}
		state.AddPayload(p)
	}

	// 2. Отправка. Буфер replies вмещает все tasks batch'а.
	replies := make(chan pool.Completion, br.Len())
	var submitErr error
	submitted := 0
	for _, p := range state.Payloads() {
		task := domain.NewTask(run.ID, number, p.Index())
		job := &pool.Job{
			TaskID:     task.ID,
			Index:      p.Index(),
			Descriptor: p.Descriptor(),
			Params:     params,
		}
		if err := r.pool.Submit(ctx, job, replies); err != nil {
			submitErr = err
			break
		}
		state.MarkSubmitted(task)
		submitted++
	}

	// 3. Барьер: ждём каждый отправленный task, даже если ctx отменён.
	invariantErr := drainReplies(logger, replies, submitted, state, collector)

	// После барьера без итога остались только неотправленные инстансы
	// (отмена ctx или закрытый пул).
	for _, index := range collector.Missing(br) {
		collector.RecordAbsent(index, "not submitted")
	}

	// 4. Освобождение. Сегменты, удалённые воркером, учитываются ареной как peer release.
	if err := r.releaseBatch(logger, state); err != nil {
		invariantErr = errors.Join(invariantErr, err)
	}

	logger.Debug("batch barrier passed", "stats", state.Stats())

	if invariantErr != nil {
		return invariantErr
	}
	if submitErr != nil {
		return fmt.Errorf("submit: %w", submitErr)
	}
	return nil
}

// drainReplies читает ровно submitted completions из replies.
//
// Completion, отвергнутый BatchState, тоже засчитывается. Tasks,
// оставшиеся без своего completion, записываются как ABSENT.
func drainReplies(logger *slog.Logger, replies <-chan pool.Completion, submitted int,
	state *BatchState, collector *aggregate.Collector) error {

	var errs error
	for received := 0; received < submitted; received++ {
		c := <-replies
		task, err := state.Complete(c)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		tlog := telemetry.WithIndex(logger, c.Index)
		if c.Succeeded() {
			tlog.Debug("task succeeded",
				"worker_id", c.WorkerID,
				"duration", task.Duration(),
				"elapsed", task.Elapsed(),
			)
			err = collector.Record(c.Index, c.Result)
		} else {
			tlog.Warn("task failed",
				"task_id", task.ID,
				"worker_id", c.WorkerID,
				"released_by_worker", c.Released,
				"duration", task.Duration(),
				"error", c.Err,
			)
			err = collector.RecordAbsent(c.Index, task.Error)
		}
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	for _, task := range state.Unfinished() {
		errs = errors.Join(errs, fmt.Errorf("%w: task %s index %d",
			ErrMissingCompletion, task.ID, task.Index))
		if err := collector.RecordAbsent(task.Index, "no completion"); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// releaseBatch освобождает буферы batch'а и проверяет, что арена пуста.
func (r *Runner) releaseBatch(logger *slog.Logger, state *BatchState) error {
	var errs []error
	for _, p := range state.Payloads() {
		if err := p.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release index %d: %w", p.Index(), err))
		}
	}

	if live := r.arena.Live(); len(live) > 0 {
		logger.Error("shared buffers leaked", "count", len(live), "first", live[0].String())
		errs = append(errs, fmt.Errorf("%w: %d live buffers", ErrBufferLeak, len(live)))
		if err := r.arena.ReleaseAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// abortBatch освобождает уже размещённые буферы и возвращает err.
func (r *Runner) abortBatch(logger *slog.Logger, state *BatchState, err error) error {
	return errors.Join(err, r.releaseBatch(logger, state))
}

// runLegacyBatch выполняет один batch через внешний исполняемый файл.
func (r *Runner) runLegacyBatch(ctx context.Context, br domain.BatchRange,
	instances []*domain.Instance, params domain.SolverParams, collector *aggregate.Collector) error {

	outcomes, err := r.legacy.ExecuteBatch(ctx, br.Lo, instances[br.Lo:br.Hi], params)
	if err != nil {
		return err
	}

	var errs []error
	for _, o := range outcomes {
		if o.IsPresent() {
			errs = append(errs, collector.Record(o.Index, o.Result))
		} else {
			errs = append(errs, collector.RecordAbsent(o.Index, o.Error))
		}
	}
	return errors.Join(errs...)
}

// finish публикует run.completed и сохраняет отчёт. Ошибки только логируются.
func (r *Runner) finish(logger *slog.Logger, report *domain.Report) {
	run := report.Run
	logger.Info("run finished",
		"status", run.Status,
		"present", report.Stats.Present,
		"absent", report.Stats.Absent,
		"mean_gap", report.Stats.MeanGap,
		"duration", run.Duration(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if r.publisher != nil {
		err := r.publisher.PublishRunCompleted(ctx, mq.RunCompletedPayload{
			RunID:   run.ID,
			Status:  run.Status,
			Backend: run.Backend,
			Stats:   report.Stats,
			Error:   run.Error,
		})
		if err != nil {
			logger.Warn("failed to publish run event", "error", err)
		}
	}

	if r.store != nil {
		if err := r.store.Save(ctx, report); err != nil {
			logger.Warn("failed to save report", "error", err)
		}
	}
}

func (r *Runner) publishBatch(logger *slog.Logger, p mq.BatchCompletedPayload) {
	if r.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := r.publisher.PublishBatchCompleted(ctx, p); err != nil {
		logger.Warn("failed to publish batch event", "error", err)
	}
}

func countRange(c *aggregate.Collector, br domain.BatchRange) (present, absent int) {
	for i := br.Lo; i < br.Hi; i++ {
		o, _ := c.Outcome(i)
		if o.IsPresent() {
			present++
		} else {
			absent++
		}
	}
	return present, absent
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
