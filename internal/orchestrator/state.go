package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/payload"
	"github.com/shaiso/tspbatch/internal/pool"
)

// BatchState — состояние одного batch'а в памяти.
//
// Создаётся при старте batch'а и живёт до барьера: пока все отправленные
// tasks не завершились, буферы batch'а не освобождаются.
type BatchState struct {
	// RunID — родительский run.
	RunID uuid.UUID

	// Number — порядковый номер batch'а в run.
	Number int

	// Range — индексы входной последовательности.
	Range domain.BatchRange

	// payloads — размещённые инстансы в порядке индексов.
	payloads []*payload.Payload

	// tasks — отправленные в пул tasks (taskID → Task).
	tasks map[uuid.UUID]*domain.Task

	// pending — отправленные, но не завершённые tasks.
	pending int

	succeeded int
	failed    int

	mu sync.RWMutex
}

// NewBatchState создаёт новый BatchState.
func NewBatchState(runID uuid.UUID, number int, r domain.BatchRange) *BatchState {
	return &BatchState{
		RunID:  runID,
		Number: number,
		Range:  r,
		tasks:  make(map[uuid.UUID]*domain.Task),
	}
}

// AddPayload запоминает размещённый инстанс.
func (s *BatchState) AddPayload(p *payload.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
}

// Payloads возвращает размещённые инстансы.
func (s *BatchState) Payloads() []*payload.Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*payload.Payload(nil), s.payloads...)
}

// MarkSubmitted учитывает отправленный в пул task.
func (s *BatchState) MarkSubmitted(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	s.pending++
}

// Complete применяет completion к task'у.
func (s *BatchState) Complete(c pool.Completion) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[c.TaskID]
	if !ok || task.IsFinished() {
		return nil, fmt.Errorf("%w: task %s index %d", ErrUnknownCompletion, c.TaskID, c.Index)
	}
	if task.Index != c.Index {
		return nil, fmt.Errorf("%w: task %s submitted for index %d, completed for %d",
			ErrUnknownCompletion, c.TaskID, task.Index, c.Index)
	}

	if c.StartedAt.IsZero() {
		task.WorkerID = c.WorkerID
	} else {
		task.MarkRunning(c.WorkerID, c.StartedAt)
	}
	if c.Succeeded() {
		task.MarkSucceeded()
		s.succeeded++
	} else {
		task.MarkFailed(errorText(c.Err))
		s.failed++
	}
	s.pending--
	return task, nil
}

// Pending возвращает число незавершённых tasks.
func (s *BatchState) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Unfinished возвращает отправленные tasks без completion в порядке индексов.
func (s *BatchState) Unfinished() []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*domain.Task
	for _, task := range s.tasks {
		if !task.IsFinished() {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Index < tasks[j].Index })
	return tasks
}

// Task возвращает task по ID.
func (s *BatchState) Task(id uuid.UUID) *domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

// Stats возвращает статистику batch'а.
func (s *BatchState) Stats() BatchStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return BatchStats{
		Instances: s.Range.Len(),
		Allocated: len(s.payloads),
		Submitted: len(s.tasks),
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Pending:   s.pending,
	}
}

// BatchStats — статистика выполнения batch'а.
type BatchStats struct {
	Instances int
	Allocated int
	Submitted int
	Succeeded int
	Failed    int
	Pending   int
}

func errorText(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}
