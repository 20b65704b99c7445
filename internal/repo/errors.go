package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — отчёт нельзя сохранить в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)
