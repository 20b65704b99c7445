package solver

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/shaiso/tspbatch/internal/domain"
)

// Local — встроенный solver: жадное построение по спискам кандидатов,
// 2-opt, затем перезапуски с возмущением лучшего тура.
//
// Перезапуски идут, пока не истечёт ParamT × city_num секунд
// или не будет сделано ParamH × city_num попыток.
type Local struct {
	// Seed — базовое зерно генератора. Для одного и того же входа
	// и одного Seed количество попыток не зависит от планировщика.
	Seed uint64
}

// Solve решает инстанс.
func (l *Local) Solve(ctx context.Context, in *Input, params domain.SolverParams) (*domain.Result, error) {
	if err := params.CheckDepth(in.CityNum); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	n := in.CityNum
	dist := in.DistanceMatrix()

	w := dist
	if !symmetric(dist, n) {
		w = symmetrize(dist, n)
	}

	concorde := TourCost(dist, n, toInt(in.OptimalTour))
	cands := candidateLists(in, params, w)

	budget := time.Duration(params.ParamT * float64(n) * float64(time.Second))
	maxRestarts := int(params.ParamH * float64(n))
	deadline := started.Add(budget)
	stop := func() bool { return ctx.Err() != nil || time.Now().After(deadline) }

	rng := rand.New(rand.NewPCG(l.Seed, uint64(n)))

	best := greedyTour(w, n, cands)
	twoOpt(w, n, best, stop)
	bestCost := TourCost(dist, n, best)

	var trace []domain.TracePoint
	record := func() {
		if params.LogTrace {
			trace = append(trace, domain.TracePoint{
				Length:  bestCost,
				Elapsed: time.Since(started).Seconds(),
			})
		}
	}
	record()

	cur := make([]int, n)
	for restart := 0; restart < maxRestarts && !stop(); restart++ {
		copy(cur, best)
		perturb(rng, cur)
		twoOpt(w, n, cur, stop)

		if c := TourCost(dist, n, cur); c < bestCost {
			bestCost = c
			copy(best, cur)
			record()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &domain.Result{
		ConcordeDistance: concorde,
		MCTSDistance:     bestCost,
		Gap:              domain.ComputeGap(concorde, bestCost),
		SolveTime:        time.Since(started).Seconds(),
		Solution:         best,
		LengthTimeTrace:  trace,
	}, nil
}

// candidateLists возвращает для каждого города упорядоченный список соседей.
//
// Явный список кандидатов имеет приоритет. Иначе берутся MaxCandidateNum
// соседей с наибольшим весом heatmap (CandidateUseHeatmap=1) или с
// наименьшим расстоянием.
func candidateLists(in *Input, params domain.SolverParams, w []float64) [][]int {
	n := in.CityNum
	lists := make([][]int, n)

	if in.CandidateK > 0 && len(in.Candidates) == n*in.CandidateK {
		for i := 0; i < n; i++ {
			row := in.Candidates[i*in.CandidateK : (i+1)*in.CandidateK]
			for _, c := range row {
				if c >= 0 && int(c) != i {
					lists[i] = append(lists[i], int(c))
				}
			}
		}
		return lists
	}

	k := params.MaxCandidateNum
	if k > n-1 {
		k = n - 1
	}

	var heat []float64
	if params.CandidateUseHeatmap == 1 {
		heat = symmetrize(in.Heatmap, n)
	}

	others := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		others = others[:0]
		for j := 0; j < n; j++ {
			if j != i {
				others = append(others, j)
			}
		}
		sort.SliceStable(others, func(a, b int) bool {
			x, y := others[a], others[b]
			if heat != nil && heat[i*n+x] != heat[i*n+y] {
				return heat[i*n+x] > heat[i*n+y]
			}
			return w[i*n+x] < w[i*n+y]
		})
		lists[i] = append([]int(nil), others[:k]...)
	}
	return lists
}

// greedyTour строит тур из города 0: следующий город — первый непосещённый
// кандидат, иначе ближайший непосещённый.
func greedyTour(w []float64, n int, cands [][]int) []int {
	tour := make([]int, 0, n)
	visited := make([]bool, n)

	cur := 0
	tour = append(tour, cur)
	visited[cur] = true

	for len(tour) < n {
		next := -1
		for _, c := range cands[cur] {
			if !visited[c] {
				next = c
				break
			}
		}
		if next < 0 {
			bestD := math.Inf(1)
			for j := 0; j < n; j++ {
				if !visited[j] && w[cur*n+j] < bestD {
					bestD = w[cur*n+j]
					next = j
				}
			}
		}
		tour = append(tour, next)
		visited[next] = true
		cur = next
	}
	return tour
}

// perturb применяет double-bridge к туру; маленькие туры перемешиваются целиком.
// Город 0 остаётся на позиции 0.
func perturb(rng *rand.Rand, tour []int) {
	n := len(tour)
	if n < 8 {
		rest := tour[1:]
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		return
	}

	cuts := rng.Perm(n - 2)[:3]
	sort.Ints(cuts)
	p1, p2, p3 := cuts[0]+1, cuts[1]+1, cuts[2]+1

	out := make([]int, 0, n)
	out = append(out, tour[:p1]...)
	out = append(out, tour[p2:p3]...)
	out = append(out, tour[p1:p2]...)
	out = append(out, tour[p3:]...)
	copy(tour, out)
}
