package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidInput — инстанс или параметры не прошли проверку.
	// Run отклоняется до создания первого буфера.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable — выбранный backend не сконфигурирован.
	ErrBackendUnavailable = errors.New("backend not configured")

	// ErrBufferLeak — после закрытия batch'а в арене остались живые сегменты.
	ErrBufferLeak = errors.New("shared buffers leaked past batch barrier")

	// ErrUnknownCompletion — пул вернул completion для task, которого нет в batch'е.
	ErrUnknownCompletion = errors.New("completion for unknown task")

	// ErrMissingCompletion — отправленный task прошёл барьер без completion.
	ErrMissingCompletion = errors.New("task left without completion")
)
