package solver

import (
	"context"
	"time"

	"github.com/shaiso/tspbatch/internal/domain"
)

// Reference возвращает эталонный тур как решение (gap = 0).
// Используется для проверки транспорта без затрат на поиск.
type Reference struct{}

// Solve решает инстанс.
func (Reference) Solve(ctx context.Context, in *Input, params domain.SolverParams) (*domain.Result, error) {
	if err := params.CheckDepth(in.CityNum); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	tour := toInt(in.OptimalTour)
	cost := TourCost(in.DistanceMatrix(), in.CityNum, tour)

	return &domain.Result{
		ConcordeDistance: cost,
		MCTSDistance:     cost,
		Gap:              0,
		SolveTime:        time.Since(started).Seconds(),
		Solution:         tour,
	}, nil
}
