package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/ipc"
	"github.com/shaiso/tspbatch/internal/payload"
	"github.com/shaiso/tspbatch/internal/solver"
	"github.com/shaiso/tspbatch/internal/telemetry"
)

// Worker выполняет tasks, присланные пулом.
//
// Для каждого task:
//   - открывает буферы инстанса (read-only, без копирования)
//   - синхронно вызывает solver
//   - закрывает отображения
//   - отправляет Result или отказ
//
// На аварийном пути (ошибка solver'а, паника) воркер сам удаляет сегменты
// task'а и сообщает об этом в task.completed (Released), чтобы владелец не
// считал их утечкой.
type Worker struct {
	registry *solver.Registry
	logger   *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	// Registry — реестр solver'ов (опционально; если nil — solver.NewRegistry()).
	Registry *solver.Registry

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	registry := cfg.Registry
	if registry == nil {
		registry = solver.NewRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		registry: registry,
		logger:   logger,
	}
}

// Serve обслуживает канал сообщений до EOF, worker.shutdown или отмены ctx.
//
// r и w — stdin/stdout процесса воркера либо пара io.Pipe.
func (w *Worker) Serve(ctx context.Context, r io.Reader, wr io.Writer) error {
	conn := ipc.NewConn(r, wr)

	ready := ipc.WorkerReadyPayload{PID: os.Getpid(), Solvers: w.registry.Names()}
	if err := conn.Send(ipc.MessageTypeWorkerReady, ready); err != nil {
		return err
	}

	w.logger.Info("worker ready", "pid", ready.PID, "solvers", ready.Solvers)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := conn.Receive()
		if errors.Is(err, io.EOF) {
			w.logger.Info("input closed, worker exiting")
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}

		switch msg.Type {
		case ipc.MessageTypeWorkerShutdown:
			w.logger.Info("shutdown requested, worker exiting")
			return nil

		case ipc.MessageTypeTaskAssign:
			task, err := ipc.ParsePayload[ipc.TaskAssignPayload](msg)
			if err != nil {
				return err
			}
			done := w.Handle(ctx, task)
			if err := conn.Send(ipc.MessageTypeTaskCompleted, done); err != nil {
				return err
			}

		default:
			w.logger.Warn("ignoring unexpected message", "type", msg.Type)
		}
	}
}

// Handle выполняет один task и всегда возвращает task.completed.
func (w *Worker) Handle(ctx context.Context, task ipc.TaskAssignPayload) (done ipc.TaskCompletedPayload) {
	logger := telemetry.WithIndex(w.logger, task.Index).With("task_id", task.TaskID)
	done = ipc.TaskCompletedPayload{
		TaskID: task.TaskID,
		Index:  task.Index,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("solver panicked", "panic", r, "stack", string(debug.Stack()))
			done = w.fail(logger, task, fmt.Errorf("%w: %v", ErrSolverPanic, r))
		}
	}()

	s, err := w.registry.Get(task.Params.Solver)
	if err != nil {
		return w.fail(logger, task, err)
	}

	if task.Params.Debug {
		logger.Info("solving",
			"city_num", task.Descriptor.CityNum,
			"geometry", task.Descriptor.Geometry,
			"params", task.Params,
		)
	}

	started := time.Now()
	res, err := w.solve(ctx, s, task)
	if err != nil {
		return w.fail(logger, task, fmt.Errorf("%w: %v", ErrSolveFailed, err))
	}

	if task.Params.Debug {
		logger.Info("solved",
			"concorde_distance", res.ConcordeDistance,
			"mcts_distance", res.MCTSDistance,
			"gap", res.Gap,
			"solve_time", res.SolveTime,
		)
	}
	logger.Debug("task succeeded", "duration", time.Since(started))

	done.Status = domain.TaskStatusSucceeded
	done.Result = res
	return done
}

// solve открывает буферы, вызывает solver и снимает отображения на любом выходе.
func (w *Worker) solve(ctx context.Context, s solver.Solver, task ipc.TaskAssignPayload) (*domain.Result, error) {
	views, err := payload.Open(task.Descriptor)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := views.Close(); err != nil {
			w.logger.Warn("failed to close views", "index", task.Index, "error", err)
		}
	}()

	return s.Solve(ctx, views.Input(), task.Params)
}

// fail удаляет сегменты task'а и строит отказ.
func (w *Worker) fail(logger *slog.Logger, task ipc.TaskAssignPayload, cause error) ipc.TaskCompletedPayload {
	logger.Warn("task failed", "error", cause)

	done := ipc.TaskCompletedPayload{
		TaskID:  task.TaskID,
		Index:   task.Index,
		Status:  domain.TaskStatusFailed,
		Error:   cause.Error(),
		Handles: task.Descriptor.Handles(),
	}

	if err := payload.Unlink(task.Descriptor); err != nil {
		logger.Error("failed to unlink buffers", "error", err)
		return done
	}
	done.Released = true
	return done
}
