// Package config загружает конфигурацию tspbatch: YAML-файл,
// затем переменные окружения, затем флаги CLI (в пакете cli).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/tspbatch/internal/domain"
)

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Переменные окружения, переопределяющие файл.
const (
	EnvDatabaseURL = "DB_URL"
	EnvRabbitMQURL = "RABBITMQ_URL"
	EnvShmDir      = "TSPBATCH_SHM_DIR"
	EnvMetricsAddr = "METRICS_ADDR"
)

// Config — полная конфигурация. Все секции перечислены явно:
// файл читается с KnownFields(true), опечатка в ключе — ошибка.
type Config struct {
	Solver   domain.SolverParams `yaml:"solver"`
	Pool     PoolConfig          `yaml:"pool"`
	Batching BatchingConfig      `yaml:"batching"`
	Shm      ShmConfig           `yaml:"shm"`
	Legacy   LegacyConfig        `yaml:"legacy"`
	Database DatabaseConfig      `yaml:"database"`
	AMQP     AMQPConfig          `yaml:"amqp"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

// PoolConfig — пул воркер-процессов.
type PoolConfig struct {
	Workers      int           `yaml:"workers"`
	TaskTimeout  time.Duration `yaml:"task_timeout"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	// InProcess — воркеры горутинами вместо процессов.
	InProcess bool `yaml:"in_process"`
}

// BatchingConfig — разбиение на batch'и.
type BatchingConfig struct {
	// Size — инстансов в batch'е; 0 — 2 × workers.
	Size int `yaml:"size"`
	// MemoryBudgetMB — предел буферов batch'а; 0 — без предела.
	MemoryBudgetMB int64 `yaml:"memory_budget_mb"`
}

// MemoryBudget возвращает предел в байтах; -1 — без предела.
func (b BatchingConfig) MemoryBudget() int64 {
	if b.MemoryBudgetMB == 0 {
		return -1
	}
	return b.MemoryBudgetMB << 20
}

// ShmConfig — каталог и префикс сегментов.
type ShmConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// LegacyConfig — внешний исполняемый solver.
type LegacyConfig struct {
	Executable  string `yaml:"executable"`
	WorkDir     string `yaml:"work_dir"`
	KeepFiles   bool   `yaml:"keep_files"`
	Parallelism int    `yaml:"parallelism"`
}

// DatabaseConfig — PostgreSQL для отчётов. Пустой URL — не сохранять.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AMQPConfig — RabbitMQ для событий. Пустой URL — не публиковать.
type AMQPConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig — HTTP endpoint /metrics. Пустой адрес — выключен.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Solver: domain.DefaultSolverParams(),
		Pool: PoolConfig{
			Workers:      runtime.NumCPU(),
			StartTimeout: 30 * time.Second,
		},
		Batching: BatchingConfig{
			MemoryBudgetMB: 1024,
		},
		Shm: ShmConfig{
			Dir:    "/dev/shm",
			Prefix: "tspbatch",
		},
		Legacy: LegacyConfig{
			WorkDir:     "/dev/shm",
			Parallelism: 1,
		},
	}
}

// Load читает path поверх Default, применяет окружение и проверяет результат.
// Пустой path — только Default и окружение.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode разбирает YAML поверх cfg. Неизвестные ключи — ошибка.
func Decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv переопределяет значения из окружения.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseURL); ok {
		c.Database.URL = v
	}
	if v, ok := lookup(EnvRabbitMQURL); ok {
		c.AMQP.URL = v
	}
	if v, ok := lookup(EnvShmDir); ok && v != "" {
		c.Shm.Dir = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.Metrics.Addr = v
	}
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("%w: solver: %v", ErrInvalidConfig, err)
	}
	switch {
	case c.Pool.Workers < 1:
		return fmt.Errorf("%w: pool.workers must be >= 1, got %d", ErrInvalidConfig, c.Pool.Workers)
	case c.Pool.TaskTimeout < 0:
		return fmt.Errorf("%w: pool.task_timeout must be >= 0", ErrInvalidConfig)
	case c.Batching.Size < 0:
		return fmt.Errorf("%w: batching.size must be >= 0", ErrInvalidConfig)
	case c.Batching.MemoryBudgetMB < 0:
		return fmt.Errorf("%w: batching.memory_budget_mb must be >= 0", ErrInvalidConfig)
	case c.Shm.Dir == "":
		return fmt.Errorf("%w: shm.dir is empty", ErrInvalidConfig)
	case c.Legacy.Parallelism < 1:
		return fmt.Errorf("%w: legacy.parallelism must be >= 1", ErrInvalidConfig)
	}
	return nil
}
