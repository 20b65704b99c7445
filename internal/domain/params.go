package domain

import "fmt"

// SolverParams — скалярные параметры вызова solver'а.
//
// Передаются в каждом task как есть; сами данные инстанса идут через shared memory.
type SolverParams struct {
	// Solver — имя solver'а в реестре воркера (default: "local").
	Solver string `json:"solver,omitempty" yaml:"solver"`

	// Alpha — вес при оценке потенциала ребра.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Beta — вес при обратном распространении.
	Beta float64 `json:"beta" yaml:"beta"`

	// ParamH — управляет количеством сэмплируемых действий.
	ParamH float64 `json:"param_h" yaml:"param_h"`

	// ParamT — управляет условием остановки: время поиска ≈ ParamT × city_num секунд.
	ParamT float64 `json:"param_t" yaml:"param_t"`

	// MaxCandidateNum — размер списка кандидатов на город.
	MaxCandidateNum int `json:"max_candidate_num" yaml:"max_candidate_num"`

	// CandidateUseHeatmap — 1: кандидаты по heatmap, 0: по расстоянию.
	CandidateUseHeatmap int `json:"candidate_use_heatmap" yaml:"candidate_use_heatmap"`

	// MaxDepth — глубина дерева поиска; требуется 2*MaxDepth <= city_num.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// LogTrace — записывать (длина тура, время) во время поиска.
	LogTrace bool `json:"log_trace" yaml:"log_trace"`

	// Debug — подробный лог на стороне воркера.
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultSolverParams возвращает параметры по умолчанию.
func DefaultSolverParams() SolverParams {
	return SolverParams{
		Solver:              "local",
		Alpha:               1,
		Beta:                10,
		ParamH:              10,
		ParamT:              0.1,
		MaxCandidateNum:     5,
		CandidateUseHeatmap: 1,
		MaxDepth:            10,
	}
}

// Validate проверяет параметры, не зависящие от инстанса.
func (p SolverParams) Validate() error {
	if p.MaxCandidateNum <= 0 {
		return fmt.Errorf("%w: max_candidate_num must be positive, got %d", ErrInvalidParams, p.MaxCandidateNum)
	}
	if p.MaxDepth <= 0 {
		return fmt.Errorf("%w: max_depth must be positive, got %d", ErrInvalidParams, p.MaxDepth)
	}
	if p.ParamT < 0 || p.ParamH < 0 {
		return fmt.Errorf("%w: param_t and param_h must be non-negative", ErrInvalidParams)
	}
	if p.CandidateUseHeatmap != 0 && p.CandidateUseHeatmap != 1 {
		return fmt.Errorf("%w: candidate_use_heatmap must be 0 or 1, got %d", ErrInvalidParams, p.CandidateUseHeatmap)
	}
	return nil
}

// CheckDepth проверяет ограничение 2*max_depth <= city_num.
func (p SolverParams) CheckDepth(cityNum int) error {
	if 2*p.MaxDepth > cityNum {
		return fmt.Errorf("%w: max_depth=%d, city_num=%d", ErrMaxDepthTooLarge, p.MaxDepth, cityNum)
	}
	return nil
}
