package legacy

import "errors"

// Ошибки legacy-адаптера.
var (
	// ErrMalformedFile — файл инстанса или heatmap не соответствует формату.
	ErrMalformedFile = errors.New("malformed file")

	// ErrResultCountMismatch — число найденных результатов не совпадает с
	// числом успешных запусков. Batch считается повреждённым.
	ErrResultCountMismatch = errors.New("result count mismatch")

	// ErrExecutableFailed — исполняемый файл завершился с ошибкой.
	ErrExecutableFailed = errors.New("executable failed")

	// ErrNoExecutable — путь к исполняемому файлу не задан.
	ErrNoExecutable = errors.New("executable is not configured")
)
