package ipc

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/tspbatch/internal/domain"
	"github.com/shaiso/tspbatch/internal/shm"
)

func TestConn_SendReceive(t *testing.T) {
	var buf bytes.Buffer
	out := NewConn(nil, &buf)

	taskID := uuid.New()
	sent := TaskCompletedPayload{
		TaskID: taskID,
		Index:  17,
		Status: domain.TaskStatusFailed,
		Error:  "solver panicked",
		Handles: []shm.Handle{
			{Name: "tspbatch-a", Shape: []int{20, 20}, DType: shm.Float64},
		},
		Released: true,
	}
	if err := out.Send(MessageTypeWorkerReady, WorkerReadyPayload{PID: 1}); err != nil {
		t.Fatalf("send ready: %v", err)
	}
	if err := out.Send(MessageTypeTaskCompleted, sent); err != nil {
		t.Fatalf("send completed: %v", err)
	}

	in := NewConn(&buf, nil)
	if _, err := in.Expect(MessageTypeWorkerReady); err != nil {
		t.Fatalf("expect ready: %v", err)
	}

	msg, err := in.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	got, err := ParsePayload[TaskCompletedPayload](msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.TaskID != taskID || got.Index != 17 || !got.Released || len(got.Handles) != 1 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Handles[0].Bytes() != 20*20*8 {
		t.Errorf("handle lost shape: %+v", got.Handles[0])
	}

	if _, err := in.Receive(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestConn_Errors(t *testing.T) {
	in := NewConn(strings.NewReader("not json\n"), nil)
	if _, err := in.Receive(); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}

	var buf bytes.Buffer
	if err := NewConn(nil, &buf).Send(MessageTypeWorkerShutdown, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := NewConn(&buf, nil).Expect(MessageTypeTaskAssign); !errors.Is(err, ErrUnexpectedMessage) {
		t.Errorf("expected ErrUnexpectedMessage, got %v", err)
	}
}
