package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/ipc"
	"github.com/shaiso/tspbatch/internal/payload"
	"github.com/shaiso/tspbatch/internal/shm"
	"github.com/shaiso/tspbatch/internal/telemetry"
)

// Default configuration values.
const (
	defaultStartTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Job — task для пула: только handles и скалярные параметры.
type Job struct {
	TaskID     uuid.UUID
	Index      int
	Descriptor payload.Descriptor
	Params     domain.SolverParams
}

// Completion — итог task'а.
type Completion struct {
	TaskID   uuid.UUID
	Index    int
	WorkerID int

	Status domain.TaskStatus
	Result *domain.Result
	Err    error

	// Handles — буферы task'а при отказе: те, что воркер пытался открыть,
	// либо все буферы дескриптора, если воркер не ответил.
	Handles []shm.Handle

	// Released — воркер сам удалил сегменты task'а.
	Released bool

	SubmittedAt time.Time
	// StartedAt — момент передачи task'а воркеру; нулевой, если
	// воркер не получил task.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded возвращает true, если есть Result.
func (c Completion) Succeeded() bool {
	return c.Status == domain.TaskStatusSucceeded && c.Result != nil
}

type request struct {
	job       *Job
	replies   chan<- Completion
	submitted time.Time
}

// Pool — фиксированный набор из W воркеров, переиспользуемых между batch'ами.
//
// Каждый слот — горутина, владеющая одним воркером; слоты забирают tasks
// из общего канала. Воркер, умерший или не уложившийся в дедлайн, убивается
// и перезапускается в том же слоте, task получает отказ.
type Pool struct {
	workers         int
	spawner         Spawner
	taskTimeout     time.Duration
	startTimeout    time.Duration
	shutdownTimeout time.Duration

	jobs chan request

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	started    bool
	closed     bool
}

// Config — конфигурация Pool.
type Config struct {
	// Workers — размер пула (>= 1).
	Workers int

	// Spawner — способ запуска воркеров (default: ExecSpawner).
	Spawner Spawner

	// TaskTimeout — дедлайн одного task'а; 0 — без дедлайна.
	TaskTimeout time.Duration

	// StartTimeout — ожидание worker.ready (default: 30s).
	StartTimeout time.Duration

	// ShutdownTimeout — ожидание завершения воркера при Shutdown (default: 5s).
	ShutdownTimeout time.Duration

	// Logger
	Logger *slog.Logger

	// Metrics (опционально)
	Metrics *telemetry.Metrics
}

// New создаёт Pool. Воркеры запускаются в Start.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	spawner := cfg.Spawner
	if spawner == nil {
		spawner = &ExecSpawner{}
	}

	startTimeout := cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = defaultStartTimeout
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		workers:         workers,
		spawner:         spawner,
		taskTimeout:     cfg.TaskTimeout,
		startTimeout:    startTimeout,
		shutdownTimeout: shutdownTimeout,
		jobs:            make(chan request),
		logger:          logger,
		metrics:         cfg.Metrics,
	}
}

// Workers возвращает размер пула.
func (p *Pool) Workers() int {
	return p.workers
}

// Start запускает W воркеров и ждёт готовности каждого.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	p.ctx, p.cancelFunc = context.WithCancel(ctx)

	p.logger.Info("starting worker pool",
		"workers", p.workers,
		"task_timeout", p.taskTimeout,
	)

	slots := make([]*slot, 0, p.workers)
	for id := 0; id < p.workers; id++ {
		s := &slot{id: id, pool: p, logger: telemetry.WithWorker(p.logger, id)}
		if err := s.spawn(); err != nil {
			for _, started := range slots {
				started.stop()
			}
			p.cancelFunc()
			return err
		}
		slots = append(slots, s)
	}

	for _, s := range slots {
		p.wg.Add(1)
		go func(s *slot) {
			defer p.wg.Done()
			s.loop()
		}(s)
	}

	p.started = true
	p.logger.Info("worker pool started")
	return nil
}

// Submit ставит task в очередь. Completion будет отправлен в replies.
//
// replies должен иметь буфер не меньше числа отправленных в него tasks:
// слот не ждёт читателя дольше, чем нужно для записи в буфер.
func (p *Pool) Submit(ctx context.Context, job *Job, replies chan<- Completion) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.closed {
		return ErrPoolClosed
	}

	req := request{job: job, replies: replies, submitted: time.Now()}
	select {
	case p.jobs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown останавливает пул: новые tasks не принимаются,
// воркеры получают worker.shutdown и завершаются.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping worker pool...")
	p.wg.Wait()
	p.cancelFunc()
	p.logger.Info("worker pool stopped")
}

// slot владеет одним воркером.
type slot struct {
	id     int
	pool   *Pool
	logger *slog.Logger

	proc Process
	conn *ipc.Conn
	msgs chan *ipc.Message
	dead chan struct{}
}

// spawn запускает воркер и ждёт worker.ready.
func (s *slot) spawn() error {
	p := s.pool

	proc, err := p.spawner.Spawn(p.ctx, s.id)
	if err != nil {
		return err
	}

	s.proc = proc
	s.conn = ipc.NewConn(proc.Stdout(), proc.Stdin())
	s.msgs = make(chan *ipc.Message)
	s.dead = make(chan struct{})
	go s.read(s.conn, s.msgs, s.dead)

	timer := time.NewTimer(p.startTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-s.msgs:
		if !ok {
			s.kill()
			return fmt.Errorf("%w: worker %d exited before ready", ErrSpawnFailed, s.id)
		}
		if msg.Type != ipc.MessageTypeWorkerReady {
			s.kill()
			return fmt.Errorf("%w: worker %d: %s before ready", ErrSpawnFailed, s.id, msg.Type)
		}
		ready, _ := ipc.ParsePayload[ipc.WorkerReadyPayload](msg)
		s.logger.Debug("worker ready", "pid", ready.PID)
		return nil
	case <-timer.C:
		s.kill()
		return fmt.Errorf("%w: worker %d not ready after %s", ErrSpawnFailed, s.id, p.startTimeout)
	case <-p.ctx.Done():
		s.kill()
		return p.ctx.Err()
	}
}

// read перекладывает сообщения воркера в канал; закрывает его на EOF/ошибке.
func (s *slot) read(conn *ipc.Conn, msgs chan<- *ipc.Message, dead <-chan struct{}) {
	defer close(msgs)
	for {
		msg, err := conn.Receive()
		if err != nil {
			return
		}
		select {
		case msgs <- msg:
		case <-dead:
			return
		}
	}
}

// kill убивает воркер и освобождает слот.
func (s *slot) kill() {
	if s.proc == nil {
		return
	}
	if err := s.proc.Kill(); err != nil {
		s.logger.Warn("failed to kill worker", "error", err)
	}
	close(s.dead)
	s.proc.Wait()
	s.proc = nil
}

// stop завершает воркер штатно: worker.shutdown, закрытие stdin, ожидание.
func (s *slot) stop() {
	if s.proc == nil {
		return
	}

	s.conn.Send(ipc.MessageTypeWorkerShutdown, nil)
	s.proc.Stdin().Close()

	exited := make(chan struct{})
	go func() {
		s.proc.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		close(s.dead)
		s.proc = nil
	case <-time.After(s.pool.shutdownTimeout):
		s.logger.Warn("worker did not exit in time, killing")
		s.kill()
	}
}

// respawn заменяет убитый воркер.
func (s *slot) respawn() {
	s.pool.metrics.WorkerRestarted()
	if err := s.spawn(); err != nil {
		s.logger.Error("failed to respawn worker", "error", err)
		return
	}
	s.logger.Info("worker respawned")
}

func (s *slot) loop() {
	defer s.stop()
	for req := range s.pool.jobs {
		c := s.run(req)
		req.replies <- c
	}
}

// run выполняет один task на воркере слота.
func (s *slot) run(req request) Completion {
	p := s.pool
	job := req.job
	logger := telemetry.WithIndex(s.logger, job.Index)

	c := Completion{
		TaskID:      job.TaskID,
		Index:       job.Index,
		WorkerID:    s.id,
		SubmittedAt: req.submitted,
	}
	finish := func() Completion {
		c.FinishedAt = time.Now()
		if c.Status == "" {
			c.Status = domain.TaskStatusFailed
		}
		if c.Status != domain.TaskStatusSucceeded && len(c.Handles) == 0 {
			c.Handles = job.Descriptor.Handles()
		}
		if c.Result != nil {
			c.Result.OverallTime = c.FinishedAt.Sub(c.SubmittedAt).Seconds()
		}
		p.metrics.ObserveTask(string(c.Status), c.FinishedAt.Sub(c.SubmittedAt))
		return c
	}

	if s.proc == nil {
		s.respawn()
		if s.proc == nil {
			c.Err = fmt.Errorf("%w: worker %d unavailable", ErrSpawnFailed, s.id)
			return finish()
		}
	}

	p.metrics.WorkerBusy(1)
	defer p.metrics.WorkerBusy(-1)

	assign := ipc.TaskAssignPayload{
		TaskID:     job.TaskID,
		Index:      job.Index,
		Descriptor: job.Descriptor,
		Params:     job.Params,
	}
	c.StartedAt = time.Now()
	if err := s.conn.Send(ipc.MessageTypeTaskAssign, assign); err != nil {
		logger.Warn("worker unreachable", "error", err)
		s.kill()
		s.respawn()
		c.Err = fmt.Errorf("%w: %v", ErrWorkerDied, err)
		return finish()
	}

	var deadline <-chan time.Time
	if p.taskTimeout > 0 {
		timer := time.NewTimer(p.taskTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case msg, ok := <-s.msgs:
			if !ok {
				logger.Warn("worker died during task")
				s.kill()
				s.respawn()
				c.Err = ErrWorkerDied
				return finish()
			}
			if msg.Type != ipc.MessageTypeTaskCompleted {
				logger.Warn("ignoring unexpected message", "type", msg.Type)
				continue
			}
			done, err := ipc.ParsePayload[ipc.TaskCompletedPayload](msg)
			if err != nil {
				c.Err = err
				return finish()
			}
			if done.TaskID != job.TaskID {
				logger.Warn("ignoring stale completion", "task_id", done.TaskID)
				continue
			}
			c.Status = done.Status
			c.Result = done.Result
			c.Handles = done.Handles
			c.Released = done.Released
			if done.Error != "" {
				c.Err = errors.New(done.Error)
			}
			return finish()

		case <-deadline:
			logger.Warn("task deadline exceeded, killing worker", "timeout", p.taskTimeout)
			s.kill()
			s.respawn()
			c.Err = fmt.Errorf("%w: %s", ErrTaskDeadline, p.taskTimeout)
			return finish()

		case <-p.ctx.Done():
			s.kill()
			c.Err = p.ctx.Err()
			return finish()
		}
	}
}
