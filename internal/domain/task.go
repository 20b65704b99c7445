package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — решение одного инстанса на одном воркере.
//
// Task создаётся BatchRunner'ом для каждого инстанса batch'а,
// у которого удалось разместить буферы, и выполняется воркером пула.
type Task struct {
	// ID — уникальный идентификатор task.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// Index — позиция инстанса во входной последовательности.
	Index int `json:"index"`

	// Batch — порядковый номер batch'а.
	Batch int `json:"batch"`

	// Status — текущий статус task.
	Status TaskStatus `json:"status"`

	// WorkerID — воркер, получивший task.
	WorkerID int `json:"worker_id,omitempty"`

	// SubmittedAt — время отправки в пул.
	SubmittedAt time.Time `json:"submitted_at"`

	// StartedAt — время передачи воркеру.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`
}

// NewTask создаёт task в статусе QUEUED.
func NewTask(runID uuid.UUID, batch, index int) *Task {
	return &Task{
		ID:          uuid.New(),
		RunID:       runID,
		Index:       index,
		Batch:       batch,
		Status:      TaskStatusQueued,
		SubmittedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// Elapsed возвращает время с момента отправки до завершения (включая очередь и транспорт).
func (t *Task) Elapsed() time.Duration {
	if t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(t.SubmittedAt)
}

// IsFinished возвращает true, если task завершён.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// MarkRunning переводит task в статус RUNNING: воркер workerID получил
// его в момент at.
func (t *Task) MarkRunning(workerID int, at time.Time) {
	t.Status = TaskStatusRunning
	t.StartedAt = &at
	t.WorkerID = workerID
}

// MarkSucceeded переводит task в статус SUCCEEDED.
func (t *Task) MarkSucceeded() {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.FinishedAt = &now
}

// MarkFailed переводит task в статус FAILED с ошибкой.
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Error = err
}
