package shm

import "errors"

// Ошибки shared memory.
var (
	// ErrCreate — не удалось создать или отобразить сегмент.
	ErrCreate = errors.New("create shared buffer")

	// ErrOpen — не удалось открыть сегмент на стороне читателя.
	ErrOpen = errors.New("open shared buffer")

	// ErrNameCollision — сегмент с таким именем уже существует.
	ErrNameCollision = errors.New("shared buffer name collision")

	// ErrDoubleRelease — повторное освобождение уже освобождённого сегмента.
	ErrDoubleRelease = errors.New("shared buffer released twice")

	// ErrUnknownHandle — handle не принадлежит арене.
	ErrUnknownHandle = errors.New("unknown shared buffer handle")

	// ErrEmptyBuffer — буфер нулевого размера.
	ErrEmptyBuffer = errors.New("empty shared buffer")

	// ErrShapeMismatch — размер сегмента не соответствует shape и dtype.
	ErrShapeMismatch = errors.New("shared buffer shape mismatch")

	// ErrInvalidName — имя сегмента содержит разделители пути.
	ErrInvalidName = errors.New("invalid shared buffer name")
)
