package domain

// TracePoint — отметка (длина лучшего тура, прошедшее время) во время поиска.
type TracePoint struct {
	Length  float64 `json:"length"`
	Elapsed float64 `json:"elapsed"`
}

// Result — результат решения одного инстанса.
//
// Создаётся воркером (или legacy-адаптером), потребляется агрегатором
// один раз и после этого не изменяется.
type Result struct {
	// ConcordeDistance — длина эталонного тура.
	ConcordeDistance float64 `json:"concorde_distance"`

	// MCTSDistance — длина найденного тура.
	MCTSDistance float64 `json:"mcts_distance"`

	// Gap — (mcts − concorde) / concorde.
	Gap float64 `json:"gap"`

	// SolveTime — время поиска внутри solver'а, секунды.
	SolveTime float64 `json:"solve_time"`

	// OverallTime — время от отправки task до получения результата,
	// включая транспорт, секунды.
	OverallTime float64 `json:"overall_time"`

	// Solution — найденный тур (перестановка городов).
	// Пустой, если транспорт не возвращает тур (legacy-адаптер).
	Solution []int `json:"solution,omitempty"`

	// LengthTimeTrace — мониторинговый артефакт, на корректность не влияет.
	LengthTimeTrace []TracePoint `json:"length_time_trace,omitempty"`
}

// ComputeGap возвращает относительный gap найденного тура.
func ComputeGap(concorde, mcts float64) float64 {
	if concorde == 0 {
		return 0
	}
	return (mcts - concorde) / concorde
}

// Outcome — позиция итогового отчёта: Result или явное отсутствие.
//
// Index — позиция инстанса во входной последовательности;
// порядок завершения tasks на неё не влияет.
type Outcome struct {
	Index  int           `json:"index"`
	Status OutcomeStatus `json:"status"`
	Result *Result       `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Present создаёт Outcome с результатом.
func Present(index int, r *Result) Outcome {
	return Outcome{Index: index, Status: OutcomePresent, Result: r}
}

// Absent создаёт Outcome без результата.
func Absent(index int, reason string) Outcome {
	return Outcome{Index: index, Status: OutcomeAbsent, Error: reason}
}

// IsPresent возвращает true, если результат есть.
func (o Outcome) IsPresent() bool {
	return o.Status == OutcomePresent && o.Result != nil
}
