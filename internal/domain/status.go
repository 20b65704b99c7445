package domain

// RunStatus — статус выполнения run (прогона набора инстансов).
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//	        ↘ CANCELLED
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все batch'и завершены (отдельные инстансы могут отсутствовать).
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run прерван нарушением инварианта batch'а.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён через context.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskStatus — статус выполнения task (один инстанс на одном воркере).
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCEEDED
//	                 ↘ FAILED
type TaskStatus string

const (
	// TaskStatusQueued — task отправлен в пул, ожидает свободного воркера.
	TaskStatusQueued TaskStatus = "QUEUED"

	// TaskStatusRunning — task выполняется воркером.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — воркер вернул Result.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — solver вернул ошибку, воркер упал или истёк дедлайн.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// OutcomeStatus — тег позиции в итоговом отчёте.
type OutcomeStatus string

const (
	// OutcomePresent — для инстанса есть Result.
	OutcomePresent OutcomeStatus = "PRESENT"

	// OutcomeAbsent — инстанс не решён; позиция сохраняется.
	OutcomeAbsent OutcomeStatus = "ABSENT"
)

// String возвращает строковое представление OutcomeStatus.
func (s OutcomeStatus) String() string {
	return string(s)
}
