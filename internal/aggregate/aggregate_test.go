package aggregate

import (
	"errors"
	"math"
	"testing"

	"github.com/shaiso/tspbatch/internal/domain"
)

// resultFor — результат, по которому однозначно восстанавливается индекс.
func resultFor(index int) *domain.Result {
	return &domain.Result{
		ConcordeDistance: 100,
		MCTSDistance:     100 + float64(index),
		Gap:              float64(index) / 100,
		Solution:         []int{index},
	}
}

// permutations возвращает все перестановки 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for pos := 0; pos <= len(p); pos++ {
			q := make([]int, 0, n)
			q = append(q, p[:pos]...)
			q = append(q, n-1)
			q = append(q, p[pos:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestCollector_AlignmentAllPermutations(t *testing.T) {
	const k = 4
	perms := permutations(k)
	if len(perms) != 24 {
		t.Fatalf("expected 24 permutations, got %d", len(perms))
	}

	for _, order := range perms {
		c := NewCollector(k)
		for _, index := range order {
			if err := c.Record(index, resultFor(index)); err != nil {
				t.Fatalf("order %v: record %d: %v", order, index, err)
			}
		}

		for i, o := range c.Outcomes() {
			if !o.IsPresent() || o.Index != i || o.Result.Solution[0] != i {
				t.Fatalf("order %v: position %d holds %+v", order, i, o)
			}
		}
	}
}

func TestCollector_PartialFailure(t *testing.T) {
	c := NewCollector(5)
	for _, i := range []int{4, 0, 3, 1} {
		if err := c.Record(i, resultFor(i)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := c.RecordAbsent(2, "worker died"); err != nil {
		t.Fatalf("record absent: %v", err)
	}

	outcomes := c.Outcomes()
	if len(outcomes) != 5 {
		t.Fatalf("expected 5 positions, got %d", len(outcomes))
	}
	if outcomes[2].IsPresent() || outcomes[2].Error != "worker died" {
		t.Errorf("position 2 should be absent, got %+v", outcomes[2])
	}

	s := c.Stats()
	if s.Present != 4 || s.Absent != 1 || s.Total != 5 {
		t.Errorf("unexpected counts: %+v", s)
	}
	// Среднее по 0,1,3,4, а не по пяти значениям с нулём.
	wantGap := (0.0 + 0.01 + 0.03 + 0.04) / 4
	if math.Abs(s.MeanGap-wantGap) > 1e-12 {
		t.Errorf("expected mean gap %v, got %v", wantGap, s.MeanGap)
	}

	cols := c.Report(nil).Columns()
	if cols.Gaps[2] != nil || cols.Solutions[2] != nil {
		t.Error("absent position must be nil in columns")
	}
	if cols.Gaps[3] == nil || *cols.Gaps[3] != 0.03 {
		t.Errorf("unexpected gap at 3: %v", cols.Gaps[3])
	}
}

func TestCollector_Errors(t *testing.T) {
	c := NewCollector(2)

	if err := c.Record(2, resultFor(2)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if err := c.RecordAbsent(-1, "x"); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}

	if err := c.Record(0, resultFor(0)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.RecordAbsent(0, "late failure"); !errors.Is(err, ErrDuplicateCompletion) {
		t.Errorf("expected ErrDuplicateCompletion, got %v", err)
	}

	missing := c.Missing(domain.BatchRange{Lo: 0, Hi: 2})
	if len(missing) != 1 || missing[0] != 1 {
		t.Errorf("expected [1] missing, got %v", missing)
	}
	if o, _ := c.Outcome(1); o.IsPresent() {
		t.Error("unrecorded position must be absent")
	}
}

func TestComputeStats_NoPresent(t *testing.T) {
	s := ComputeStats([]domain.Outcome{domain.Absent(0, "a"), domain.Absent(1, "b")})
	if s.Present != 0 || s.MeanGap != 0 || s.Absent != 2 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if math.IsNaN(s.MeanMCTS) {
		t.Error("mean over zero values must not be NaN")
	}
}
