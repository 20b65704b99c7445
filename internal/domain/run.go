package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один вызов run_batch над входной последовательностью инстансов.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Backend — транспорт: "shm" или "legacy".
	Backend string `json:"backend"`

	// InstanceCount — длина входной последовательности.
	InstanceCount int `json:"instance_count"`

	// Workers — размер пула воркеров.
	Workers int `json:"workers"`

	// Batches — разбиение входа на batch'и.
	Batches []BatchRange `json:"batches"`

	// Params — параметры solver'а.
	Params SolverParams `json:"params"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения.
	// Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(backend string, instanceCount, workers int, params SolverParams) *Run {
	return &Run{
		ID:            uuid.New(),
		Status:        RunStatusRunning,
		Backend:       backend,
		InstanceCount: instanceCount,
		Workers:       workers,
		Params:        params,
		StartedAt:     time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// Stats — агрегаты по присутствующим результатам.
//
// Отсутствующие позиции в средние не входят.
type Stats struct {
	Total           int     `json:"total"`
	Present         int     `json:"present"`
	Absent          int     `json:"absent"`
	MeanConcorde    float64 `json:"mean_concorde_distance"`
	MeanMCTS        float64 `json:"mean_mcts_distance"`
	MeanGap         float64 `json:"mean_gap"`
	MeanSolveTime   float64 `json:"mean_solve_time"`
	MeanOverallTime float64 `json:"mean_overall_time"`
}

// Report — итог run'а: по позиции на каждый входной инстанс плюс агрегаты.
type Report struct {
	Run      *Run      `json:"run"`
	Outcomes []Outcome `json:"outcomes"`
	Stats    Stats     `json:"stats"`
}

// Columns — колоночное представление отчёта.
//
// Отсутствующие позиции — nil, а не ноль.
type Columns struct {
	ConcordeDistances []*float64     `json:"concorde_distances"`
	MCTSDistances     []*float64     `json:"mcts_distances"`
	Gaps              []*float64     `json:"gaps"`
	SolveTimes        []*float64     `json:"solve_times"`
	OverallTimes      []*float64     `json:"overall_times"`
	Solutions         [][]int        `json:"solutions"`
	LengthTimeTraces  [][]TracePoint `json:"length_time_traces"`
}

// Columns разворачивает Outcomes в колонки, выровненные по входному порядку.
func (r *Report) Columns() Columns {
	n := len(r.Outcomes)
	c := Columns{
		ConcordeDistances: make([]*float64, n),
		MCTSDistances:     make([]*float64, n),
		Gaps:              make([]*float64, n),
		SolveTimes:        make([]*float64, n),
		OverallTimes:      make([]*float64, n),
		Solutions:         make([][]int, n),
		LengthTimeTraces:  make([][]TracePoint, n),
	}
	for i, o := range r.Outcomes {
		if !o.IsPresent() {
			continue
		}
		res := o.Result
		c.ConcordeDistances[i] = ptr(res.ConcordeDistance)
		c.MCTSDistances[i] = ptr(res.MCTSDistance)
		c.Gaps[i] = ptr(res.Gap)
		c.SolveTimes[i] = ptr(res.SolveTime)
		c.OverallTimes[i] = ptr(res.OverallTime)
		c.Solutions[i] = res.Solution
		c.LengthTimeTraces[i] = res.LengthTimeTrace
	}
	return c
}

func ptr(v float64) *float64 {
	return &v
}
