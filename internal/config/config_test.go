package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Solver.Beta != 10 || cfg.Solver.MaxCandidateNum != 5 || cfg.Solver.MaxDepth != 10 {
		t.Errorf("unexpected solver defaults: %+v", cfg.Solver)
	}
	if cfg.Batching.MemoryBudget() != 1<<30 {
		t.Errorf("expected 1 GiB budget, got %d", cfg.Batching.MemoryBudget())
	}
}

func TestDecode_OverridesDefaults(t *testing.T) {
	data := []byte(`
solver:
  solver: reference
  alpha: 1
  beta: 10
  param_h: 10
  param_t: 0.5
  max_candidate_num: 8
  candidate_use_heatmap: 0
  max_depth: 12
pool:
  workers: 3
  task_timeout: 90s
batching:
  size: 6
  memory_budget_mb: 0
shm:
  dir: /tmp/tsp
`)
	cfg := Default()
	if err := Decode(data, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Solver.Solver != "reference" || cfg.Solver.ParamT != 0.5 || cfg.Solver.CandidateUseHeatmap != 0 {
		t.Errorf("solver not decoded: %+v", cfg.Solver)
	}
	if cfg.Pool.Workers != 3 || cfg.Pool.TaskTimeout != 90*time.Second {
		t.Errorf("pool not decoded: %+v", cfg.Pool)
	}
	// Ключ не указан — остаётся значение по умолчанию.
	if cfg.Pool.StartTimeout != 30*time.Second || cfg.Shm.Prefix != "tspbatch" {
		t.Errorf("defaults lost: %+v %+v", cfg.Pool, cfg.Shm)
	}
	if cfg.Batching.MemoryBudget() != -1 {
		t.Errorf("expected unlimited budget, got %d", cfg.Batching.MemoryBudget())
	}
}

func TestDecode_UnknownField(t *testing.T) {
	cfg := Default()
	err := Decode([]byte("pool:\n  wrokers: 3\n"), &cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for typo, got %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	if err := Decode(nil, &cfg); err != nil {
		t.Errorf("empty file must be accepted: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDatabaseURL: "postgresql://db",
		EnvRabbitMQURL: "amqp://mq",
		EnvShmDir:      "/run/shm",
		EnvMetricsAddr: ":9100",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Database.URL != "postgresql://db" || cfg.AMQP.URL != "amqp://mq" ||
		cfg.Shm.Dir != "/run/shm" || cfg.Metrics.Addr != ":9100" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Pool.Workers = 0 }},
		{"negative timeout", func(c *Config) { c.Pool.TaskTimeout = -time.Second }},
		{"negative batch size", func(c *Config) { c.Batching.Size = -1 }},
		{"negative budget", func(c *Config) { c.Batching.MemoryBudgetMB = -1 }},
		{"empty shm dir", func(c *Config) { c.Shm.Dir = "" }},
		{"legacy parallelism", func(c *Config) { c.Legacy.Parallelism = 0 }},
		{"solver params", func(c *Config) { c.Solver.MaxCandidateNum = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tspbatch.yaml")
	if err := os.WriteFile(path, []byte("legacy:\n  executable: /opt/mcts\n  parallelism: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvShmDir, t.TempDir())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Legacy.Executable != "/opt/mcts" || cfg.Legacy.Parallelism != 4 {
		t.Errorf("unexpected legacy config: %+v", cfg.Legacy)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
