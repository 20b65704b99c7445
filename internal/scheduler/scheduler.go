package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidCron — cron-выражение не разбирается или не срабатывает никогда.
var ErrInvalidCron = errors.New("invalid cron expression")

// Default configuration values.
const defaultTickInterval = time.Second

// Job — одна плановая сводка (sweep): обычно полный run над набором данных.
type Job func(ctx context.Context) error

// Scheduler запускает Job по cron-выражению.
//
// Запуски не перекрываются: Job выполняется в цикле Scheduler'а, и пока он
// идёт, тики не обрабатываются. Пропущенные за это время срабатывания не
// догоняются, следующее время считается от момента завершения.
type Scheduler struct {
	expr     string
	timezone string
	job      Job
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	nextDue time.Time
	runs    int
	failed  int
}

// Config — конфигурация Scheduler.
type Config struct {
	// Expr — cron-выражение ("0 3 * * *", "@every 30m").
	Expr string

	// Timezone — IANA timezone выражения (default: UTC).
	Timezone string

	// Job — выполняемая сводка.
	Job Job

	// TickInterval — период проверки (default: 1s).
	TickInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Scheduler и вычисляет первое время выполнения.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Job == nil {
		return nil, fmt.Errorf("scheduler: job is nil")
	}

	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		expr:     cfg.Expr,
		timezone: cfg.Timezone,
		job:      cfg.Job,
		interval: interval,
		logger:   logger,
	}

	next, err := NextDue(s.expr, s.timezone, time.Now())
	if err != nil {
		return nil, err
	}
	s.nextDue = next
	return s, nil
}

// NextDueAt возвращает время следующего запуска.
func (s *Scheduler) NextDueAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDue
}

// Tick запускает Job, если now >= next_due, и вычисляет следующее время.
// Возвращает true, если Job был запущен.
//
// Ошибка Job логируется и не останавливает расписание.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	due := !now.Before(s.nextDue)
	s.mu.Unlock()
	if !due {
		return false
	}

	started := time.Now()
	s.logger.Info("scheduled sweep started", "cron", s.expr)
	err := s.job(ctx)

	s.mu.Lock()
	s.runs++
	if err != nil {
		s.failed++
	}
	next, nerr := NextDue(s.expr, s.timezone, maxTime(now, time.Now()))
	if nerr == nil {
		s.nextDue = next
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled sweep failed", "error", err, "duration", time.Since(started))
	} else {
		s.logger.Info("scheduled sweep finished", "duration", time.Since(started))
	}
	s.logger.Info("next sweep scheduled", "next_due_at", next)
	return true
}

// Run выполняет цикл Tick до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "cron", s.expr, "next_due_at", s.NextDueAt())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "runs", s.Stats().Runs)
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Stats — счётчики запусков.
type Stats struct {
	Runs   int
	Failed int
}

// Stats возвращает счётчики запусков.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Runs: s.runs, Failed: s.failed}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
