package solver

import "errors"

// Ошибки solver'а.
var (
	// ErrUnknownSolver — solver с таким именем не зарегистрирован.
	ErrUnknownSolver = errors.New("unknown solver")

	// ErrInvalidInput — массивы входа не согласованы с city_num.
	ErrInvalidInput = errors.New("invalid solver input")
)
