package domain

import "errors"

// Ошибки валидации входных данных.
var (
	// ErrInvalidInstance — инстанс не прошёл проверку формы массивов.
	ErrInvalidInstance = errors.New("invalid instance")

	// ErrInvalidParams — некорректные параметры solver'а.
	ErrInvalidParams = errors.New("invalid solver params")

	// ErrMaxDepthTooLarge — 2*max_depth > city_num.
	ErrMaxDepthTooLarge = errors.New("max_depth should be less than city_num/2")
)
