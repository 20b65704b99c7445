package worker

import "errors"

// Ошибки воркера.
var (
	// ErrSolverPanic — solver запаниковал; task помечается FAILED.
	ErrSolverPanic = errors.New("solver panicked")

	// ErrSolveFailed — solver вернул ошибку.
	ErrSolveFailed = errors.New("solve failed")
)
