package pool

import "errors"

// Ошибки пула.
var (
	// ErrWorkerDied — процесс воркера завершился, не вернув результат.
	ErrWorkerDied = errors.New("worker died")

	// ErrTaskDeadline — task не завершился за отведённое время; воркер убит.
	ErrTaskDeadline = errors.New("task deadline exceeded")

	// ErrSpawnFailed — не удалось запустить воркер.
	ErrSpawnFailed = errors.New("failed to spawn worker")

	// ErrPoolClosed — пул остановлен, новые tasks не принимаются.
	ErrPoolClosed = errors.New("pool is shut down")

	// ErrPoolNotStarted — Submit до Start.
	ErrPoolNotStarted = errors.New("pool is not started")
)
