package legacy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/tspbatch/internal/domain"
)

// HeatmapFileName — имя heatmap-файла инстанса i в каталоге набора данных.
func HeatmapFileName(i int) string {
	return fmt.Sprintf("heatmap_%d.txt", i)
}

// LoadDataset читает инстансы из Concorde-файла и heatmaps из heatmapDir.
//
// Пустой heatmapDir даёт нулевые heatmaps. limit > 0 ограничивает число инстансов.
// Heatmaps читаются параллельно, не более parallelism файлов одновременно.
func LoadDataset(ctx context.Context, concordePath, heatmapDir string, limit, parallelism int) ([]*domain.Instance, error) {
	f, err := os.Open(concordePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadConcordeFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(concordePath), err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	instances := make([]*domain.Instance, len(records))
	for i, rec := range records {
		instances[i] = &domain.Instance{
			CityNum:     rec.CityNum,
			Coordinates: rec.Coordinates,
			Distances:   rec.Distances,
			OptimalTour: rec.Tour,
		}
	}

	if parallelism <= 0 {
		parallelism = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, in := range instances {
		g.Go(func() error {
			if heatmapDir == "" {
				in.Heatmap = make([]float64, in.CityNum*in.CityNum)
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			hf, err := os.Open(filepath.Join(heatmapDir, HeatmapFileName(i)))
			if err != nil {
				return err
			}
			defer hf.Close()

			heatmap, n, err := ReadHeatmapFile(hf)
			if err != nil {
				return fmt.Errorf("%s: %w", HeatmapFileName(i), err)
			}
			if n != in.CityNum {
				return fmt.Errorf("%w: %s is %dx%d, instance has %d cities",
					ErrMalformedFile, HeatmapFileName(i), n, n, in.CityNum)
			}
			in.Heatmap = heatmap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return instances, nil
}
