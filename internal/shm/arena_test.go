package shm

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	arena, err := NewArena(ArenaConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}
	return arena
}

func TestArena_Float64RoundTrip(t *testing.T) {
	arena := newTestArena(t)
	rng := rand.New(rand.NewPCG(1, 2))

	shapes := [][]int{{1}, {2, 2}, {3, 7}, {20, 20}, {50, 2}, {101, 101}}
	for _, shape := range shapes {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float64, n)
		for i := range data {
			data[i] = rng.NormFloat64() * 1e6
		}
		// Специальные значения тоже должны переживать транспорт бит в бит.
		data[0] = math.Copysign(0, -1)
		if n > 1 {
			data[n-1] = math.SmallestNonzeroFloat64
		}

		h, err := arena.CreateFloat64(shape, data)
		if err != nil {
			t.Fatalf("create %v: %v", shape, err)
		}

		view, err := Open(arena.Dir(), h)
		if err != nil {
			t.Fatalf("open %v: %v", shape, err)
		}
		got := view.Float64s()
		if len(got) != n {
			t.Fatalf("shape %v: expected %d values, got %d", shape, n, len(got))
		}
		for i := range data {
			if math.Float64bits(got[i]) != math.Float64bits(data[i]) {
				t.Fatalf("shape %v: value %d differs: %v != %v", shape, i, got[i], data[i])
			}
		}

		if err := view.Close(); err != nil {
			t.Fatalf("close view: %v", err)
		}
		if err := arena.Release(h); err != nil {
			t.Fatalf("release: %v", err)
		}
	}

	if live := arena.Live(); len(live) != 0 {
		t.Errorf("expected no live buffers, got %d", len(live))
	}
}

func TestArena_Int32RoundTrip(t *testing.T) {
	arena := newTestArena(t)

	data := []int{0, -1, 5, math.MaxInt32, math.MinInt32, 42}
	h, err := arena.CreateInt32([]int{2, 3}, data)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer arena.Release(h)

	view, err := Open(arena.Dir(), h)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer view.Close()

	got := view.Int32s()
	for i, v := range data {
		if int(got[i]) != v {
			t.Errorf("value %d: expected %d, got %d", i, v, got[i])
		}
	}
	if view.Float64s() != nil {
		t.Error("Float64s on int32 view should be nil")
	}
}

func TestArena_DoubleRelease(t *testing.T) {
	arena := newTestArena(t)

	h, err := arena.CreateFloat64([]int{4}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := arena.Release(h); err != nil {
		t.Fatalf("first release: %v", err)
	}
	err = arena.Release(h)
	if !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("expected ErrDoubleRelease, got %v", err)
	}
}

func TestArena_ReleaseAfterPeerUnlink(t *testing.T) {
	arena := newTestArena(t)

	h, err := arena.CreateFloat64([]int{2}, []float64{1, 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Воркер удалил сегмент сам (аварийный путь)
	if err := Unlink(arena.Dir(), h); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	// Повторный unlink со стороны воркера безопасен
	if err := Unlink(arena.Dir(), h); err != nil {
		t.Fatalf("second unlink: %v", err)
	}

	if err := arena.Release(h); err != nil {
		t.Fatalf("release after peer unlink should succeed, got %v", err)
	}

	stats := arena.Stats()
	if stats.ReleasedByPeer != 1 || stats.ReleasedByOwner != 0 {
		t.Errorf("expected 1 peer release and 0 owner releases, got %+v", stats)
	}
	if stats.Live != 0 || stats.LiveBytes != 0 {
		t.Errorf("expected nothing live, got %+v", stats)
	}
	if !errors.Is(arena.Release(h), ErrDoubleRelease) {
		t.Error("second owner release must still be reported")
	}
}

func TestArena_UniqueNames(t *testing.T) {
	arena := newTestArena(t)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		h, err := arena.CreateFloat64([]int{1}, []float64{float64(i)})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if seen[h.Name] {
			t.Fatalf("duplicate name %s", h.Name)
		}
		seen[h.Name] = true
	}

	if got := len(arena.Live()); got != 200 {
		t.Errorf("expected 200 live buffers, got %d", got)
	}
	if err := arena.ReleaseAll(); err != nil {
		t.Fatalf("release all: %v", err)
	}

	entries, err := os.ReadDir(arena.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir after ReleaseAll, found %d files", len(entries))
	}
}

func TestArena_CreateRejectsEmpty(t *testing.T) {
	arena := newTestArena(t)

	if _, err := arena.Create(Float64, []int{0, 3}); !errors.Is(err, ErrCreate) {
		t.Errorf("expected ErrCreate for zero shape, got %v", err)
	}
	if _, err := arena.Create(Float64, nil); !errors.Is(err, ErrCreate) {
		t.Errorf("expected ErrCreate for nil shape, got %v", err)
	}
	if _, err := arena.CreateFloat64([]int{3}, []float64{1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	if live := arena.Live(); len(live) != 0 {
		t.Errorf("failed creates must not leak, got %d live", len(live))
	}
}

func TestOpen_Errors(t *testing.T) {
	arena := newTestArena(t)

	h, err := arena.CreateFloat64([]int{2, 2}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer arena.Release(h)

	tests := []struct {
		name   string
		handle Handle
		want   error
	}{
		{"wrong shape", Handle{Name: h.Name, Shape: []int{3, 3}, DType: Float64}, ErrShapeMismatch},
		{"wrong dtype size", Handle{Name: h.Name, Shape: []int{2, 2}, DType: Int32}, ErrShapeMismatch},
		{"path traversal", Handle{Name: "../" + h.Name, Shape: []int{2, 2}, DType: Float64}, ErrOpen},
		{"missing", Handle{Name: "tspbatch-missing", Shape: []int{2, 2}, DType: Float64}, ErrOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(arena.Dir(), tt.handle)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewArena_MissingDir(t *testing.T) {
	_, err := NewArena(ArenaConfig{Dir: filepath.Join(t.TempDir(), "nope")})
	if !errors.Is(err, ErrCreate) {
		t.Errorf("expected ErrCreate, got %v", err)
	}
}
