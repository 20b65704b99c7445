// Package aggregate собирает результаты tasks в отчёт, выровненный по
// входному порядку.
//
// Completion записывается по глобальному индексу инстанса, который несёт
// каждый task; порядок прихода на позицию не влияет. Отказ записывается как
// явное отсутствие и в статистику не попадает.
package aggregate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shaiso/tspbatch/internal/domain"
)

// Ошибки агрегатора.
var (
	// ErrIndexOutOfRange — индекс вне [0, n).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrDuplicateCompletion — для индекса уже записан итог.
	ErrDuplicateCompletion = errors.New("duplicate completion")
)

// reasonNotCompleted — причина для позиций, итог которых так и не пришёл.
const reasonNotCompleted = "not completed"

// Collector — итоги n инстансов.
type Collector struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
	recorded []bool
}

// NewCollector создаёт Collector на n позиций; все позиции изначально отсутствуют.
func NewCollector(n int) *Collector {
	c := &Collector{
		outcomes: make([]domain.Outcome, n),
		recorded: make([]bool, n),
	}
	for i := range c.outcomes {
		c.outcomes[i] = domain.Absent(i, reasonNotCompleted)
	}
	return c
}

// Len возвращает число позиций.
func (c *Collector) Len() int {
	return len(c.outcomes)
}

// Record записывает результат для index.
func (c *Collector) Record(index int, r *domain.Result) error {
	if r == nil {
		return c.RecordAbsent(index, "empty result")
	}
	return c.set(domain.Present(index, r))
}

// RecordAbsent записывает отсутствие результата для index.
func (c *Collector) RecordAbsent(index int, reason string) error {
	return c.set(domain.Absent(index, reason))
}

func (c *Collector) set(o domain.Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Index < 0 || o.Index >= len(c.outcomes) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, o.Index, len(c.outcomes))
	}
	if c.recorded[o.Index] {
		return fmt.Errorf("%w: index %d", ErrDuplicateCompletion, o.Index)
	}
	c.outcomes[o.Index] = o
	c.recorded[o.Index] = true
	return nil
}

// Missing возвращает индексы r, для которых итог не записан.
func (c *Collector) Missing(r domain.BatchRange) []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var missing []int
	for i := r.Lo; i < r.Hi && i < len(c.recorded); i++ {
		if !c.recorded[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// Outcome возвращает итог позиции index.
func (c *Collector) Outcome(index int) (domain.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.outcomes) {
		return domain.Outcome{}, false
	}
	return c.outcomes[index], true
}

// Outcomes возвращает копию итогов в входном порядке.
func (c *Collector) Outcomes() []domain.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Outcome(nil), c.outcomes...)
}

// Stats возвращает статистику по присутствующим результатам.
func (c *Collector) Stats() domain.Stats {
	return ComputeStats(c.Outcomes())
}

// Report строит итоговый отчёт run'а.
func (c *Collector) Report(run *domain.Run) *domain.Report {
	outcomes := c.Outcomes()
	return &domain.Report{
		Run:      run,
		Outcomes: outcomes,
		Stats:    ComputeStats(outcomes),
	}
}

// ComputeStats считает средние по присутствующим результатам.
// Отсутствующие позиции учитываются только в Absent.
func ComputeStats(outcomes []domain.Outcome) domain.Stats {
	s := domain.Stats{Total: len(outcomes)}

	for _, o := range outcomes {
		if !o.IsPresent() {
			s.Absent++
			continue
		}
		s.Present++
		r := o.Result
		s.MeanConcorde += r.ConcordeDistance
		s.MeanMCTS += r.MCTSDistance
		s.MeanGap += r.Gap
		s.MeanSolveTime += r.SolveTime
		s.MeanOverallTime += r.OverallTime
	}

	if s.Present > 0 {
		n := float64(s.Present)
		s.MeanConcorde /= n
		s.MeanMCTS /= n
		s.MeanGap /= n
		s.MeanSolveTime /= n
		s.MeanOverallTime /= n
	}
	return s
}
