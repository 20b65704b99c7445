// Package batcher разбивает входную последовательность инстансов на
// последовательные batch'и с ограничением по памяти.
package batcher

import (
	"github.com/shaiso/tspbatch/internal/domain"
)

// Partition разбивает [0, n) на batch'и одинакового веса perInstanceBytes.
//
// См. PartitionSizes.
func Partition(n, workers int, perInstanceBytes, budget int64, batchSize int) []domain.BatchRange {
	if n <= 0 {
		return nil
	}
	sizes := make([]int64, n)
	for i := range sizes {
		sizes[i] = perInstanceBytes
	}
	return PartitionSizes(sizes, workers, budget, batchSize)
}

// PartitionSizes разбивает [0, len(sizes)) на непрерывные непересекающиеся
// диапазоны, покрывающие вход целиком.
//
// Целевой размер batch'а — batchSize, а если он не задан — 2 × workers.
// Суммарный размер batch'а не превышает budget (budget <= 0 — без ограничения);
// инстанс, который сам больше budget, становится отдельным batch'ем.
func PartitionSizes(sizes []int64, workers int, budget int64, batchSize int) []domain.BatchRange {
	n := len(sizes)
	if n == 0 {
		return nil
	}

	target := batchSize
	if target <= 0 {
		if workers < 1 {
			workers = 1
		}
		target = 2 * workers
	}

	var ranges []domain.BatchRange
	lo := 0
	var used int64
	for i, size := range sizes {
		count := i - lo
		full := count >= target
		overBudget := budget > 0 && count > 0 && used+size > budget
		if full || overBudget {
			ranges = append(ranges, domain.BatchRange{Lo: lo, Hi: i})
			lo = i
			used = 0
		}
		used += size
	}
	ranges = append(ranges, domain.BatchRange{Lo: lo, Hi: n})
	return ranges
}

// Footprint возвращает суммарный размер диапазона.
func Footprint(sizes []int64, r domain.BatchRange) int64 {
	var total int64
	for i := r.Lo; i < r.Hi; i++ {
		total += sizes[i]
	}
	return total
}
