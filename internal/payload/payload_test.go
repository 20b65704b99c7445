package payload

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/shm"
)

func testInstance(n int, withCandidates bool) *domain.Instance {
	dist := make([]float64, n*n)
	heat := make([]float64, n*n)
	tour := make([]int, n)
	for i := 0; i < n; i++ {
		tour[i] = (i + 1) % n
		for j := 0; j < n; j++ {
			dist[i*n+j] = math.Abs(float64(i-j)) + 0.125
			heat[i*n+j] = 1 / (1 + float64(i+j))
		}
	}
	in := &domain.Instance{CityNum: n, Distances: dist, OptimalTour: tour, Heatmap: heat}
	if withCandidates {
		in.CandidateK = 2
		in.Candidates = make([]int, 2*n)
		for i := 0; i < n; i++ {
			in.Candidates[2*i] = (i + 1) % n
			in.Candidates[2*i+1] = -1
		}
	}
	return in
}

func TestWriteOpen_RoundTrip(t *testing.T) {
	arena, err := shm.NewArena(shm.ArenaConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("arena: %v", err)
	}

	inst := testInstance(7, true)
	p, err := Write(arena, 42, inst)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	desc := p.Descriptor()
	if desc.Index != 42 || len(desc.Handles()) != 4 {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}

	// Дескриптор пересекает границу процесса как JSON.
	raw, err := json.Marshal(desc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Descriptor
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	views, err := Open(decoded)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	in := views.Input()

	if in.CityNum != 7 || in.CandidateK != 2 {
		t.Errorf("unexpected scalars: city_num=%d candidate_k=%d", in.CityNum, in.CandidateK)
	}
	for i, v := range inst.Distances {
		if in.Distances[i] != v {
			t.Fatalf("distance %d: %v != %v", i, in.Distances[i], v)
		}
	}
	for i, v := range inst.OptimalTour {
		if int(in.OptimalTour[i]) != v {
			t.Fatalf("tour %d: %v != %v", i, in.OptimalTour[i], v)
		}
	}
	for i, v := range inst.Candidates {
		if int(in.Candidates[i]) != v {
			t.Fatalf("candidate %d: %v != %v", i, in.Candidates[i], v)
		}
	}
	if err := in.Validate(); err != nil {
		t.Errorf("input from views invalid: %v", err)
	}

	if err := views.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if live := arena.Live(); len(live) != 0 {
		t.Errorf("expected no live buffers, got %v", live)
	}
}

func TestWrite_Coordinates(t *testing.T) {
	arena, err := shm.NewArena(shm.ArenaConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("arena: %v", err)
	}

	inst := &domain.Instance{
		CityNum:     3,
		Coordinates: []float64{0, 0, 3, 0, 3, 4},
		OptimalTour: []int{0, 1, 2},
		Heatmap:     make([]float64, 9),
	}
	p, err := Write(arena, 0, inst)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	defer p.Release()

	views, err := Open(p.Descriptor())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer views.Close()

	in := views.Input()
	if in.Distances != nil || len(in.Coordinates) != 6 {
		t.Fatalf("expected coordinates geometry, got %+v", in)
	}
	if d := in.DistanceMatrix(); d[0*3+2] != 5 {
		t.Errorf("expected distance 5, got %v", d[2])
	}
}

func TestUnlink_ThenOwnerRelease(t *testing.T) {
	arena, err := shm.NewArena(shm.ArenaConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("arena: %v", err)
	}

	p, err := Write(arena, 1, testInstance(4, false))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Unlink(p.Descriptor()); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := Open(p.Descriptor()); !errors.Is(err, shm.ErrOpen) {
		t.Errorf("expected ErrOpen after unlink, got %v", err)
	}

	if err := p.Release(); err != nil {
		t.Fatalf("owner release after worker unlink: %v", err)
	}
	if s := arena.Stats(); s.ReleasedByPeer != 3 || s.Live != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if err := p.Release(); !errors.Is(err, shm.ErrDoubleRelease) {
		t.Errorf("expected ErrDoubleRelease, got %v", err)
	}
}
