package domain

import (
	"fmt"
	"math"
)

// GeometryKind — что лежит в геометрическом буфере инстанса.
type GeometryKind string

const (
	// GeometryCoordinates — N×2 координаты городов.
	GeometryCoordinates GeometryKind = "coordinates"

	// GeometryDistances — N×N матрица расстояний (не обязательно симметричная).
	GeometryDistances GeometryKind = "distances"
)

// Instance — один инстанс задачи коммивояжёра.
//
// Все матрицы хранятся плоско, построчно (row-major).
// Instance неизменяем после создания: ни оркестратор, ни воркеры его не модифицируют.
type Instance struct {
	// CityNum — количество городов (N >= 2).
	CityNum int `json:"city_num"`

	// Coordinates — N×2 координаты. Взаимоисключающе с Distances.
	Coordinates []float64 `json:"coordinates,omitempty"`

	// Distances — N×N матрица расстояний. Взаимоисключающе с Coordinates.
	Distances []float64 `json:"distances,omitempty"`

	// OptimalTour — эталонный тур (перестановка 0..N-1), база для gap.
	OptimalTour []int `json:"optimal_tour"`

	// Heatmap — N×N веса предпочтения рёбер.
	Heatmap []float64 `json:"heatmap"`

	// Candidates — N×CandidateK списки соседей (опционально).
	// Значение -1 означает пустой слот.
	Candidates []int `json:"candidates,omitempty"`

	// CandidateK — ширина списка соседей.
	CandidateK int `json:"candidate_k,omitempty"`
}

// Geometry возвращает тип геометрии инстанса.
func (in *Instance) Geometry() GeometryKind {
	if len(in.Coordinates) > 0 {
		return GeometryCoordinates
	}
	return GeometryDistances
}

// HasCandidates сообщает, задан ли список кандидатов.
func (in *Instance) HasCandidates() bool {
	return in.CandidateK > 0 && len(in.Candidates) > 0
}

// Validate проверяет форму всех массивов инстанса.
func (in *Instance) Validate() error {
	n := in.CityNum
	if n < 2 {
		return fmt.Errorf("%w: city_num must be >= 2, got %d", ErrInvalidInstance, n)
	}

	hasCoords := len(in.Coordinates) > 0
	hasDist := len(in.Distances) > 0
	switch {
	case hasCoords && hasDist:
		return fmt.Errorf("%w: both coordinates and distances are set", ErrInvalidInstance)
	case !hasCoords && !hasDist:
		return fmt.Errorf("%w: neither coordinates nor distances are set", ErrInvalidInstance)
	case hasCoords && len(in.Coordinates) != 2*n:
		return fmt.Errorf("%w: coordinates must be %dx2, got %d values", ErrInvalidInstance, n, len(in.Coordinates))
	case hasDist && len(in.Distances) != n*n:
		return fmt.Errorf("%w: distances must be %dx%d, got %d values", ErrInvalidInstance, n, n, len(in.Distances))
	}

	for i, d := range in.Distances {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return fmt.Errorf("%w: distance[%d][%d] = %v", ErrInvalidInstance, i/n, i%n, d)
		}
	}
	for i, c := range in.Coordinates {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: coordinate[%d] = %v", ErrInvalidInstance, i, c)
		}
	}

	if err := ValidateTour(in.OptimalTour, n); err != nil {
		return fmt.Errorf("%w: optimal tour: %v", ErrInvalidInstance, err)
	}

	if len(in.Heatmap) != n*n {
		return fmt.Errorf("%w: heatmap must be %dx%d, got %d values", ErrInvalidInstance, n, n, len(in.Heatmap))
	}

	if in.CandidateK < 0 {
		return fmt.Errorf("%w: candidate_k must be >= 0", ErrInvalidInstance)
	}
	if in.CandidateK > 0 {
		if len(in.Candidates) != n*in.CandidateK {
			return fmt.Errorf("%w: candidates must be %dx%d, got %d values",
				ErrInvalidInstance, n, in.CandidateK, len(in.Candidates))
		}
		for i, c := range in.Candidates {
			if c < -1 || c >= n {
				return fmt.Errorf("%w: candidate[%d] = %d out of range", ErrInvalidInstance, i, c)
			}
		}
	} else if len(in.Candidates) > 0 {
		return fmt.Errorf("%w: candidates given without candidate_k", ErrInvalidInstance)
	}

	return nil
}

// EstimatedBytes возвращает размер всех буферов инстанса в shared memory.
// Используется Batcher'ом для учёта бюджета памяти.
func (in *Instance) EstimatedBytes() int64 {
	n := int64(in.CityNum)
	geometry := n * n * 8
	if in.Geometry() == GeometryCoordinates {
		geometry = n * 2 * 8
	}
	total := geometry + n*4 + n*n*8
	if in.HasCandidates() {
		total += n * int64(in.CandidateK) * 4
	}
	return total
}

// ValidateTour проверяет, что tour — перестановка 0..n-1.
func ValidateTour(tour []int, n int) error {
	if len(tour) != n {
		return fmt.Errorf("tour length %d, want %d", len(tour), n)
	}
	seen := make([]bool, n)
	for i, c := range tour {
		if c < 0 || c >= n {
			return fmt.Errorf("tour[%d] = %d out of range [0,%d)", i, c, n)
		}
		if seen[c] {
			return fmt.Errorf("city %d visited twice", c)
		}
		seen[c] = true
	}
	return nil
}

// EuclideanDistances строит N×N матрицу расстояний из N×2 координат.
func EuclideanDistances(coords []float64, n int) []float64 {
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		xi, yi := coords[2*i], coords[2*i+1]
		for j := i + 1; j < n; j++ {
			d := math.Hypot(xi-coords[2*j], yi-coords[2*j+1])
			dist[i*n+j] = d
			dist[j*n+i] = d
		}
	}
	return dist
}
