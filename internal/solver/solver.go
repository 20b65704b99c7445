package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/tspbatch/internal/domain"
)

// Input — данные одного инстанса, как их видит solver.
//
// Срезы могут указывать в read-only shared memory: solver не должен
// их модифицировать.
type Input struct {
	CityNum int

	// Ровно одно из Coordinates (N×2) и Distances (N×N).
	Coordinates []float64
	Distances   []float64

	// OptimalTour — эталонный тур, 0-based.
	OptimalTour []int32

	// Heatmap — N×N.
	Heatmap []float64

	// Candidates — N×CandidateK, -1 означает пустой слот.
	Candidates []int32
	CandidateK int
}

// FromInstance строит Input из domain.Instance (in-process путь и тесты).
func FromInstance(in *domain.Instance) *Input {
	out := &Input{
		CityNum:     in.CityNum,
		Coordinates: in.Coordinates,
		Distances:   in.Distances,
		Heatmap:     in.Heatmap,
		OptimalTour: toInt32(in.OptimalTour),
	}
	if in.HasCandidates() {
		out.Candidates = toInt32(in.Candidates)
		out.CandidateK = in.CandidateK
	}
	return out
}

// Validate проверяет форму массивов.
func (in *Input) Validate() error {
	n := in.CityNum
	if n < 2 {
		return fmt.Errorf("%w: city_num must be >= 2, got %d", ErrInvalidInput, n)
	}
	switch {
	case len(in.Coordinates) > 0 && len(in.Coordinates) != 2*n:
		return fmt.Errorf("%w: invalid coordinates array shape", ErrInvalidInput)
	case len(in.Coordinates) == 0 && len(in.Distances) != n*n:
		return fmt.Errorf("%w: invalid distances array shape", ErrInvalidInput)
	case len(in.OptimalTour) != n:
		return fmt.Errorf("%w: invalid opt_solution array shape", ErrInvalidInput)
	case len(in.Heatmap) != n*n:
		return fmt.Errorf("%w: invalid heatmap array shape", ErrInvalidInput)
	case in.CandidateK > 0 && len(in.Candidates) != n*in.CandidateK:
		return fmt.Errorf("%w: invalid candidates array shape", ErrInvalidInput)
	}
	if err := domain.ValidateTour(toInt(in.OptimalTour), n); err != nil {
		return fmt.Errorf("%w: opt_solution: %v", ErrInvalidInput, err)
	}
	return nil
}

// DistanceMatrix возвращает N×N матрицу расстояний.
// Для координат матрица вычисляется заново.
func (in *Input) DistanceMatrix() []float64 {
	if len(in.Coordinates) > 0 {
		return domain.EuclideanDistances(in.Coordinates, in.CityNum)
	}
	return in.Distances
}

// Solver — синхронный контракт solve(instance) -> result.
//
// Solve блокирует вызывающего на всё время поиска.
// Возвращает domain.ErrMaxDepthTooLarge, если 2*max_depth > city_num.
type Solver interface {
	Solve(ctx context.Context, in *Input, params domain.SolverParams) (*domain.Result, error)
}

// Registry — реестр solver'ов по имени.
type Registry struct {
	solvers map[string]Solver
}

// NewRegistry создаёт реестр с solver'ами по умолчанию: local, reference.
func NewRegistry() *Registry {
	r := &Registry{solvers: make(map[string]Solver)}
	r.Register("local", &Local{})
	r.Register("reference", &Reference{})
	return r
}

// Register добавляет solver.
func (r *Registry) Register(name string, s Solver) {
	r.solvers[name] = s
}

// Get возвращает solver по имени. Пустое имя означает "local".
func (r *Registry) Get(name string) (Solver, error) {
	if name == "" {
		name = "local"
	}
	s, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSolver, name)
	}
	return s, nil
}

// Names возвращает имена зарегистрированных solver'ов.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.solvers))
	for name := range r.solvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toInt32(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

func toInt(v []int32) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
