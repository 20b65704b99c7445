package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/tspbatch/internal/config"
	"github.com/shaiso/tspbatch/internal/legacy"
	"github.com/shaiso/tspbatch/internal/mq"
	"github.com/shaiso/tspbatch/internal/orchestrator"
	"github.com/shaiso/tspbatch/internal/pool"
	"github.com/shaiso/tspbatch/internal/repo"
	"github.com/shaiso/tspbatch/internal/shm"
	"github.com/shaiso/tspbatch/internal/solver"
	"github.com/shaiso/tspbatch/internal/telemetry"
)

const metricsShutdownTimeout = 5 * time.Second

// session — всё, что живёт дольше одного run: пул воркеров, арена,
// соединения с БД и RabbitMQ, HTTP /metrics. Пул создаётся один раз и
// переиспользуется всеми runs сессии (в том числе плановыми).
type session struct {
	Runner *orchestrator.Runner

	logger  *slog.Logger
	closers []func()
}

// openSession поднимает backend и опциональные сервисы по конфигурации.
//
// Недоступные БД и RabbitMQ не фатальны: run выполняется без сохранения
// отчёта или без событий, с предупреждением в логе.
func openSession(ctx context.Context, cfg config.Config, backend orchestrator.Backend, logger *slog.Logger) (*session, error) {
	s := &session{logger: logger}
	rc, err := s.setup(ctx, cfg, backend)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Runner = orchestrator.New(rc)
	return s, nil
}

func (s *session) setup(ctx context.Context, cfg config.Config, backend orchestrator.Backend) (orchestrator.Config, error) {
	logger := s.logger

	var metrics *telemetry.Metrics
	if cfg.Metrics.Addr != "" {
		metrics = s.serveMetrics(cfg.Metrics.Addr)
	}

	rc := orchestrator.Config{
		MemoryBudget: cfg.Batching.MemoryBudget(),
		BatchSize:    cfg.Batching.Size,
		Logger:       logger,
		Metrics:      metrics,
	}

	switch backend {
	case orchestrator.BackendShm:
		arena, err := shm.NewArena(shm.ArenaConfig{
			Dir:     cfg.Shm.Dir,
			Prefix:  cfg.Shm.Prefix,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			return rc, err
		}
		s.onClose(func() {
			if err := arena.ReleaseAll(); err != nil {
				logger.Warn("failed to release shared buffers", "error", err)
			}
		})

		p := pool.New(pool.Config{
			Workers:      cfg.Pool.Workers,
			Spawner:      newSpawner(cfg, logger),
			TaskTimeout:  cfg.Pool.TaskTimeout,
			StartTimeout: cfg.Pool.StartTimeout,
			Logger:       logger,
			Metrics:      metrics,
		})
		if err := p.Start(ctx); err != nil {
			return rc, fmt.Errorf("start worker pool: %w", err)
		}
		s.onClose(p.Shutdown)

		rc.Pool = p
		rc.Arena = arena

	case orchestrator.BackendLegacy:
		if cfg.Legacy.Executable == "" {
			return rc, fmt.Errorf("%w: legacy.executable is empty", config.ErrInvalidConfig)
		}
		rc.Legacy = legacy.New(legacy.Config{
			Executable:  cfg.Legacy.Executable,
			WorkDir:     cfg.Legacy.WorkDir,
			KeepFiles:   cfg.Legacy.KeepFiles,
			Parallelism: cfg.Legacy.Parallelism,
			Logger:      logger,
		})

	default:
		return rc, fmt.Errorf("%w: unknown backend %q", orchestrator.ErrBackendUnavailable, backend)
	}

	if cfg.Database.URL != "" {
		if store := s.openStore(ctx, cfg.Database.URL); store != nil {
			rc.Store = store
		}
	}
	if cfg.AMQP.URL != "" {
		if publisher := s.openPublisher(ctx, cfg.AMQP.URL); publisher != nil {
			rc.Publisher = publisher
		}
	}

	return rc, nil
}

func newSpawner(cfg config.Config, logger *slog.Logger) pool.Spawner {
	if cfg.Pool.InProcess {
		return &pool.InProcessSpawner{Registry: solver.NewRegistry(), Logger: logger}
	}
	return &pool.ExecSpawner{}
}

func (s *session) openStore(ctx context.Context, dsn string) *repo.ReportRepo {
	dbPool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		s.logger.Warn("database not available, reports will not be saved", "error", err)
		return nil
	}
	s.onClose(dbPool.Close)

	if err := repo.EnsureSchema(ctx, dbPool); err != nil {
		s.logger.Warn("failed to ensure schema, reports will not be saved", "error", err)
		return nil
	}
	s.logger.Info("database connected")
	return repo.NewReportRepo(dbPool)
}

func (s *session) openPublisher(ctx context.Context, url string) *mq.Publisher {
	conn, err := mq.NewConnection(url, s.logger)
	if err != nil {
		s.logger.Warn("RabbitMQ not available, events will not be published", "error", err)
		return nil
	}
	s.onClose(func() { conn.Close() })

	if err := mq.SetupTopology(ctx, conn); err != nil {
		s.logger.Warn("failed to setup topology", "error", err)
	}
	s.logger.Info("RabbitMQ connected")
	return mq.NewPublisher(conn, s.logger)
}

// serveMetrics поднимает /healthz и /metrics на addr.
func (s *session) serveMetrics(addr string) *telemetry.Metrics {
	reg := newRegistry()
	metrics := telemetry.NewMetrics(reg)
	mux := newOpsMux(reg)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return metrics
}

// newRegistry создаёт реестр с метриками процесса и Go runtime.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newOpsMux — /healthz и /metrics.
func newOpsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func (s *session) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// Close освобождает ресурсы в обратном порядке.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
