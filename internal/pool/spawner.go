package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/shaiso/tspbatch/internal/solver"
	"github.com/shaiso/tspbatch/internal/telemetry"
	"github.com/shaiso/tspbatch/internal/worker"
)

// Process — запущенный воркер с парой потоков сообщений.
type Process interface {
	// Stdin — поток к воркеру. Close — сигнал завершения.
	Stdin() io.WriteCloser

	// Stdout — поток от воркера.
	Stdout() io.Reader

	// Kill принудительно останавливает воркер.
	Kill() error

	// Wait ждёт завершения воркера.
	Wait() error
}

// Spawner запускает воркеры.
type Spawner interface {
	Spawn(ctx context.Context, workerID int) (Process, error)
}

// EnvWorkerID — переменная окружения с номером слота воркер-процесса.
const EnvWorkerID = "TSPBATCH_WORKER_ID"

// ExecSpawner запускает воркеры отдельными процессами ОС.
//
// По умолчанию запускает текущий бинарник с аргументом "worker".
type ExecSpawner struct {
	// Path — путь к исполняемому файлу (default: os.Executable()).
	Path string

	// Args — аргументы (default: ["worker"]).
	Args []string

	// Env — дополнительные переменные окружения.
	Env []string

	// Stderr — куда писать логи воркера (default: os.Stderr).
	Stderr io.Writer
}

// Spawn запускает процесс воркера.
func (s *ExecSpawner) Spawn(ctx context.Context, workerID int) (Process, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve executable: %v", ErrSpawnFailed, err)
		}
		path = exe
	}

	args := s.Args
	if args == nil {
		args = []string{"worker"}
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, EnvWorkerID+"="+strconv.Itoa(workerID))
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// InProcessSpawner запускает воркеры горутинами в текущем процессе,
// соединёнными через io.Pipe. Протокол тот же, что у ExecSpawner.
//
// Kill отменяет context воркера; solver, который context игнорирует,
// продолжит занимать горутину до конца поиска.
type InProcessSpawner struct {
	Registry *solver.Registry
	Logger   *slog.Logger
}

// Spawn запускает воркер-горутину.
func (s *InProcessSpawner) Spawn(ctx context.Context, workerID int) (Process, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	p := &inProcess{
		cancel: cancel,
		inR:    inR,
		inW:    inW,
		outR:   outR,
		done:   make(chan struct{}),
		killed: make(chan struct{}),
	}

	w := worker.New(worker.Config{
		Registry: s.Registry,
		Logger:   telemetry.WithWorker(logger, workerID),
	})

	go func() {
		defer close(p.done)
		p.err = w.Serve(ctx, inR, outW)
		outW.Close()
	}()

	return p, nil
}

type inProcess struct {
	cancel context.CancelFunc
	inR    *io.PipeReader
	inW    *io.PipeWriter
	outR   *io.PipeReader

	err  error
	done chan struct{}

	killOnce sync.Once
	killed   chan struct{}
}

func (p *inProcess) Stdin() io.WriteCloser { return p.inW }
func (p *inProcess) Stdout() io.Reader     { return p.outR }

func (p *inProcess) Kill() error {
	p.killOnce.Do(func() {
		p.cancel()
		p.inR.CloseWithError(ErrWorkerDied)
		p.outR.CloseWithError(ErrWorkerDied)
		close(p.killed)
	})
	return nil
}

func (p *inProcess) Wait() error {
	select {
	case <-p.done:
		return p.err
	case <-p.killed:
		return ErrWorkerDied
	}
}
