package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/payload"
	"github.com/shaiso/tspbatch/internal/shm"
)

// MessageType — тип сообщения между оркестратором и воркером.
type MessageType string

// Типы сообщений.
const (
	MessageTypeWorkerReady    MessageType = "worker.ready"
	MessageTypeTaskAssign     MessageType = "task.assign"
	MessageTypeTaskCompleted  MessageType = "task.completed"
	MessageTypeWorkerShutdown MessageType = "worker.shutdown"
)

// Ошибки протокола.
var (
	// ErrMalformedMessage — строку не удалось разобрать.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnexpectedMessage — тип сообщения не ожидался в текущем состоянии.
	ErrUnexpectedMessage = errors.New("unexpected message")
)

// Message — конверт одного сообщения. Одна строка JSON на сообщение.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка; разбирается через ParsePayload.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// WorkerReadyPayload — воркер готов принимать tasks.
type WorkerReadyPayload struct {
	PID     int      `json:"pid"`
	Solvers []string `json:"solvers"`
}

// TaskAssignPayload — task для воркера: только handles и скалярные параметры.
type TaskAssignPayload struct {
	TaskID     uuid.UUID           `json:"task_id"`
	Index      int                 `json:"index"`
	Descriptor payload.Descriptor  `json:"descriptor"`
	Params     domain.SolverParams `json:"params"`
}

// TaskCompletedPayload — итог task.
//
// При ошибке воркер перечисляет handles, которые пытался открыть,
// и сообщает, удалил ли он их сам (Released).
type TaskCompletedPayload struct {
	TaskID   uuid.UUID         `json:"task_id"`
	Index    int               `json:"index"`
	Status   domain.TaskStatus `json:"status"`
	Result   *domain.Result    `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Handles  []shm.Handle      `json:"handles,omitempty"`
	Released bool              `json:"released,omitempty"`
}

// NewMessage создаёт сообщение с сериализованным payload.
func NewMessage(t MessageType, p any) (*Message, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
	}
	if p != nil {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// ParsePayload разбирает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, msg.Type, err)
	}
	return v, nil
}
