package batcher

import (
	"math/rand/v2"
	"testing"

	"github.com/shaiso/tspbatch/internal/domain"
)

// checkCoverage проверяет, что диапазоны покрывают [0,n) без пропусков и пересечений.
func checkCoverage(t *testing.T, ranges []domain.BatchRange, n int) {
	t.Helper()
	next := 0
	for _, r := range ranges {
		if r.Lo != next {
			t.Fatalf("range %s does not start at %d (ranges %v)", r, next, ranges)
		}
		if r.Len() <= 0 {
			t.Fatalf("empty range %s", r)
		}
		next = r.Hi
	}
	if next != n {
		t.Fatalf("ranges end at %d, want %d", next, n)
	}
}

func TestPartition_Empty(t *testing.T) {
	if got := Partition(0, 4, 100, 1000, 0); len(got) != 0 {
		t.Errorf("expected no ranges, got %v", got)
	}
	if got := PartitionSizes(nil, 4, 1000, 0); len(got) != 0 {
		t.Errorf("expected no ranges, got %v", got)
	}
}

func TestPartition_DefaultTarget(t *testing.T) {
	ranges := Partition(10, 2, 1, 0, 0)
	checkCoverage(t, ranges, 10)

	want := []domain.BatchRange{{Lo: 0, Hi: 4}, {Lo: 4, Hi: 8}, {Lo: 8, Hi: 10}}
	if len(ranges) != len(want) {
		t.Fatalf("expected %v, got %v", want, ranges)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("range %d: expected %s, got %s", i, want[i], ranges[i])
		}
	}
}

func TestPartition_ExplicitBatchSize(t *testing.T) {
	ranges := Partition(7, 8, 1, 0, 3)
	checkCoverage(t, ranges, 7)
	if len(ranges) != 3 {
		t.Errorf("expected 3 ranges, got %v", ranges)
	}
}

func TestPartition_BudgetLimitsBatch(t *testing.T) {
	// 2W = 8, но в бюджет помещаются только 3 инстанса.
	ranges := Partition(10, 4, 100, 300, 0)
	checkCoverage(t, ranges, 10)
	for _, r := range ranges {
		if r.Len() > 3 {
			t.Errorf("range %s exceeds budget", r)
		}
	}
}

func TestPartition_OversizedSingleton(t *testing.T) {
	sizes := []int64{10, 500, 10, 10}
	ranges := PartitionSizes(sizes, 2, 100, 0)
	checkCoverage(t, ranges, 4)

	found := false
	for _, r := range ranges {
		if r.Contains(1) {
			found = true
			if r.Len() != 1 {
				t.Errorf("oversized instance must be alone, got %s", r)
			}
		}
	}
	if !found {
		t.Error("oversized instance dropped")
	}
}

func TestPartitionSizes_Property(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	for n := 0; n <= 40; n++ {
		for workers := 1; workers <= 5; workers++ {
			for _, budget := range []int64{0, 50, 120, 1000} {
				sizes := make([]int64, n)
				for i := range sizes {
					sizes[i] = 1 + rng.Int64N(100)
				}

				ranges := PartitionSizes(sizes, workers, budget, 0)
				if n == 0 {
					if len(ranges) != 0 {
						t.Fatalf("n=0: expected no ranges, got %v", ranges)
					}
					continue
				}
				checkCoverage(t, ranges, n)

				for _, r := range ranges {
					if r.Len() > 2*workers {
						t.Fatalf("n=%d w=%d: range %s longer than 2W", n, workers, r)
					}
					if budget > 0 && r.Len() > 1 && Footprint(sizes, r) > budget {
						t.Fatalf("n=%d w=%d budget=%d: range %s footprint %d",
							n, workers, budget, r, Footprint(sizes, r))
					}
				}
			}
		}
	}
}
