package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// View — read-only отображение сегмента на стороне читателя.
//
// Данные не копируются: срезы Float64s/Int32s указывают прямо в
// отображённую память. Запись в них приведёт к SIGSEGV.
type View struct {
	handle Handle
	data   []byte
}

// Open отображает сегмент, созданный другим процессом.
func Open(dir string, h Handle) (*View, error) {
	if err := h.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	f, err := os.Open(filepath.Join(dir, h.Name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrOpen, h.Name, err)
	}
	if info.Size() != int64(h.Bytes()) {
		return nil, fmt.Errorf("%w: %s has %d bytes, handle expects %d",
			ErrShapeMismatch, h.Name, info.Size(), h.Bytes())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, h.Bytes(), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrOpen, h.Name, err)
	}

	return &View{handle: h, data: data}, nil
}

// Handle возвращает handle отображённого сегмента.
func (v *View) Handle() Handle {
	return v.handle
}

// Float64s возвращает данные Float64-сегмента.
func (v *View) Float64s() []float64 {
	if v.handle.DType != Float64 {
		return nil
	}
	return float64View(v.data)
}

// Int32s возвращает данные Int32-сегмента.
func (v *View) Int32s() []int32 {
	if v.handle.DType != Int32 {
		return nil
	}
	return int32View(v.data)
}

// Close снимает отображение. Повторный вызов — no-op.
// Сегмент при этом не удаляется: это делает владелец (Arena.Release).
func (v *View) Close() error {
	if v.data == nil {
		return nil
	}
	err := unix.Munmap(v.data)
	v.data = nil
	if err != nil {
		return fmt.Errorf("munmap %s: %w", v.handle.Name, err)
	}
	return nil
}

// Unlink удаляет сегмент со стороны читателя.
//
// Используется воркером на аварийном пути, чтобы упавший solve не оставил
// сегмент в /dev/shm. Отсутствие сегмента ошибкой не считается.
func Unlink(dir string, h Handle) error {
	if err := h.validate(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(dir, h.Name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlink %s: %w", h.Name, err)
	}
	return nil
}
