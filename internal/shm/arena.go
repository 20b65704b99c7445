package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/shaiso/tspbatch/internal/telemetry"
)

// Default configuration values.
const (
	defaultDir    = "/dev/shm"
	defaultPrefix = "tspbatch"
)

// releaseSide — кто фактически удалил сегмент.
type releaseSide string

const (
	sideOwner releaseSide = "owner"
	sidePeer  releaseSide = "peer"
)

// Arena владеет набором именованных сегментов shared memory.
//
// Arena — сторона писателя (оркестратор):
//   - Create создаёт сегмент и возвращает writable view
//   - Release удаляет сегмент ровно один раз
//   - Live показывает неосвобождённые сегменты (проверка утечек на закрытии batch'а)
//
// Если воркер уже удалил сегмент сам (аварийный путь), Release это
// обнаруживает и не считает ошибкой; повторный Release того же handle — ошибка.
type Arena struct {
	dir     string
	prefix  string
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu       sync.Mutex
	live     map[string]Handle
	released map[string]releaseSide
	stats    Stats
}

// ArenaConfig — конфигурация Arena.
type ArenaConfig struct {
	// Dir — каталог сегментов (default: /dev/shm).
	Dir string

	// Prefix — префикс имён сегментов (default: tspbatch).
	Prefix string

	// Logger
	Logger *slog.Logger

	// Metrics (опционально)
	Metrics *telemetry.Metrics
}

// Stats — счётчики арены.
type Stats struct {
	Created         int   `json:"created"`
	ReleasedByOwner int   `json:"released_by_owner"`
	ReleasedByPeer  int   `json:"released_by_peer"`
	Live            int   `json:"live"`
	LiveBytes       int64 `json:"live_bytes"`
}

// NewArena создаёт Arena. Каталог должен существовать.
func NewArena(cfg ArenaConfig) (*Arena, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = defaultDir
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: stat dir: %v", ErrCreate, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCreate, dir)
	}

	return &Arena{
		dir:      dir,
		prefix:   prefix,
		logger:   logger,
		metrics:  cfg.Metrics,
		live:     make(map[string]Handle),
		released: make(map[string]releaseSide),
	}, nil
}

// Dir возвращает каталог сегментов. Воркерам он нужен для Open.
func (a *Arena) Dir() string {
	return a.dir
}

// Buffer — сегмент на стороне писателя с writable view.
//
// Писатель копирует данные один раз и вызывает Seal; после этого
// буфер для писателя только на чтение (view снят).
type Buffer struct {
	handle Handle
	data   []byte
}

// Handle возвращает handle буфера.
func (b *Buffer) Handle() Handle {
	return b.handle
}

// Float64s возвращает writable view для Float64-буфера.
func (b *Buffer) Float64s() []float64 {
	if b.handle.DType != Float64 {
		return nil
	}
	return float64View(b.data)
}

// Int32s возвращает writable view для Int32-буфера.
func (b *Buffer) Int32s() []int32 {
	if b.handle.DType != Int32 {
		return nil
	}
	return int32View(b.data)
}

// Seal снимает writable view писателя. Повторный вызов — no-op.
func (b *Buffer) Seal() error {
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	if err != nil {
		return fmt.Errorf("munmap %s: %w", b.handle.Name, err)
	}
	return nil
}

// Create создаёт новый сегмент заданной формы.
//
// Имя уникально для каждого живого сегмента (prefix + UUID), поэтому
// одновременно активные batch'и и несколько оркестраторов не конфликтуют.
func (a *Arena) Create(dtype DType, shape []int) (*Buffer, error) {
	h := Handle{
		Name:  a.prefix + "-" + uuid.NewString(),
		Shape: append([]int(nil), shape...),
		DType: dtype,
	}
	if err := h.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}

	path := filepath.Join(a.dir, h.Name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrNameCollision, h.Name)
		}
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	defer f.Close()

	size := h.Bytes()
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: truncate %s: %v", ErrCreate, h.Name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrCreate, h.Name, err)
	}

	a.mu.Lock()
	a.live[h.Name] = h
	a.stats.Created++
	a.stats.Live++
	a.stats.LiveBytes += int64(size)
	a.mu.Unlock()

	a.metrics.BufferCreated(size)

	return &Buffer{handle: h, data: data}, nil
}

// CreateFloat64 создаёт Float64-сегмент, копирует в него data и запечатывает.
func (a *Arena) CreateFloat64(shape []int, data []float64) (Handle, error) {
	buf, err := a.Create(Float64, shape)
	if err != nil {
		return Handle{}, err
	}
	view := buf.Float64s()
	if len(view) != len(data) {
		buf.Seal()
		a.Release(buf.Handle())
		return Handle{}, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	copy(view, data)
	if err := buf.Seal(); err != nil {
		a.Release(buf.Handle())
		return Handle{}, err
	}
	return buf.Handle(), nil
}

// CreateInt32 создаёт Int32-сегмент из data и запечатывает.
func (a *Arena) CreateInt32(shape []int, data []int) (Handle, error) {
	buf, err := a.Create(Int32, shape)
	if err != nil {
		return Handle{}, err
	}
	view := buf.Int32s()
	if len(view) != len(data) {
		buf.Seal()
		a.Release(buf.Handle())
		return Handle{}, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	for i, v := range data {
		view[i] = int32(v)
	}
	if err := buf.Seal(); err != nil {
		a.Release(buf.Handle())
		return Handle{}, err
	}
	return buf.Handle(), nil
}

// Release удаляет сегмент.
//
// Возвращает ErrDoubleRelease, если handle уже освобождён через арену,
// и nil, если сегмент уже удалён воркером (учитывается как release со стороны peer).
func (a *Arena) Release(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	live, ok := a.live[h.Name]
	if !ok {
		if _, was := a.released[h.Name]; was {
			return fmt.Errorf("%w: %s", ErrDoubleRelease, h.Name)
		}
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h.Name)
	}

	side := sideOwner
	err := os.Remove(filepath.Join(a.dir, live.Name))
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		side = sidePeer
	default:
		return fmt.Errorf("remove %s: %w", live.Name, err)
	}

	delete(a.live, live.Name)
	a.released[live.Name] = side
	a.stats.Live--
	a.stats.LiveBytes -= int64(live.Bytes())
	if side == sidePeer {
		a.stats.ReleasedByPeer++
		a.logger.Debug("shared buffer already released by worker", "name", live.Name)
	} else {
		a.stats.ReleasedByOwner++
	}

	a.metrics.BufferReleased(live.Bytes(), string(side))
	return nil
}

// ReleaseAll освобождает все живые сегменты и возвращает первую ошибку.
func (a *Arena) ReleaseAll() error {
	var firstErr error
	for _, h := range a.Live() {
		if err := a.Release(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Live возвращает неосвобождённые сегменты, отсортированные по имени.
func (a *Arena) Live() []Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	handles := make([]Handle, 0, len(a.live))
	for _, h := range a.live {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Name < handles[j].Name })
	return handles
}

// Stats возвращает снимок счётчиков.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
