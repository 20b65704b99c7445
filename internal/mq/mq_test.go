package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/tspbatch/internal/domain"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// roundTrip повторяет путь сообщения через брокер: Publish → Body → Consumer.
func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Message
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &got
}

func TestDecodeEvent_BatchCompleted(t *testing.T) {
	runID := uuid.New()
	msg := roundTrip(t, NewMessage(MessageTypeBatchCompleted, BatchCompletedPayload{
		RunID: runID, Batch: 2, Lo: 8, Hi: 12, Present: 3, Absent: 1, Duration: 1.5,
	}))

	if _, ok := msg.Payload.(map[string]any); !ok {
		t.Fatalf("expected payload decoded as map, got %T", msg.Payload)
	}

	ev, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, ok := ev.(BatchCompletedPayload)
	if !ok {
		t.Fatalf("expected BatchCompletedPayload, got %T", ev)
	}
	if p.RunID != runID || p.Lo != 8 || p.Hi != 12 || p.Absent != 1 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestDecodeEvent_RunCompleted(t *testing.T) {
	msg := roundTrip(t, NewMessage(MessageTypeRunCompleted, RunCompletedPayload{
		RunID:   uuid.New(),
		Status:  domain.RunStatusSucceeded,
		Backend: "shm",
		Stats:   domain.Stats{Total: 4, Present: 4, MeanGap: 0.01},
	}))

	ev, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := ev.(RunCompletedPayload)
	if p.Status != domain.RunStatusSucceeded || p.Stats.Present != 4 || p.Stats.MeanGap != 0.01 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestDecodeEvent_Unknown(t *testing.T) {
	msg := roundTrip(t, NewMessage("task.ready", nil))
	if _, err := DecodeEvent(msg); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

// acker запоминает, как consumer подтвердил сообщение.
type acker struct {
	settled string
	requeue bool
}

func (a *acker) Ack(uint64, bool) error { a.settled = "ack"; return nil }

func (a *acker) Nack(_ uint64, _ bool, requeue bool) error {
	a.settled, a.requeue = "nack", requeue
	return nil
}

func (a *acker) Reject(_ uint64, requeue bool) error {
	a.settled, a.requeue = "reject", requeue
	return nil
}

func TestConsumer_Handle(t *testing.T) {
	body, err := json.Marshal(NewMessage(MessageTypeRunCompleted, RunCompletedPayload{RunID: uuid.New()}))
	if err != nil {
		t.Fatal(err)
	}
	errWrite := errors.New("broken pipe")

	tests := []struct {
		name        string
		body        []byte
		handlerErr  error
		wantSettled string
		wantRequeue bool
		wantErr     error
	}{
		{"handled", body, nil, "ack", false, nil},
		{"rejected by handler", body, fmt.Errorf("%w: bad event", ErrReject), "reject", false, nil},
		{"handler failure", body, errWrite, "nack", true, errWrite},
		{"malformed body", []byte("{"), nil, "reject", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Delivery
			c := NewConsumer(nil, quietLogger, ConsumerConfig{
				Handler: func(_ context.Context, d *Delivery) error {
					got = d
					return tt.handlerErr
				},
			})

			a := &acker{}
			err := c.handle(context.Background(), amqp.Delivery{
				Acknowledger: a,
				Body:         tt.body,
				RoutingKey:   string(RoutingKeyRunCompleted),
				Redelivered:  true,
			})

			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if a.settled != tt.wantSettled || a.requeue != tt.wantRequeue {
				t.Errorf("expected %s(requeue=%v), got %s(requeue=%v)", tt.wantSettled, tt.wantRequeue, a.settled, a.requeue)
			}
			if got != nil && (got.RoutingKey != "run.completed" || !got.Redelivered || got.Message.Type != MessageTypeRunCompleted) {
				t.Errorf("unexpected delivery: %+v", got)
			}
		})
	}
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerConfig{})
	if c.prefetch != 1 {
		t.Errorf("expected prefetch 1, got %d", c.prefetch)
	}
	if len(c.bindings) != 1 || c.bindings[0] != RoutingKeyAllEvents {
		t.Errorf("expected all events binding, got %v", c.bindings)
	}
}

func TestParseRoutingKeys(t *testing.T) {
	keys, err := ParseRoutingKeys([]string{"batch.completed", " run.completed ", "", "run.*"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []RoutingKey{RoutingKeyBatchCompleted, RoutingKeyRunCompleted, "run.*"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}

	if _, err := ParseRoutingKeys([]string{"task.ready"}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestNextRedialDelay(t *testing.T) {
	d := minRedialDelay
	for i := 0; i < 10; i++ {
		next := nextRedialDelay(d)
		if next < d || next > maxRedialDelay {
			t.Fatalf("step %d: %s -> %s", i, d, next)
		}
		d = next
	}
	if d != maxRedialDelay {
		t.Errorf("expected delay capped at %s, got %s", maxRedialDelay, d)
	}
}
