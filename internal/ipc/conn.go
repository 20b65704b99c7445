package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineBytes — предел длины одного сообщения. Result с traces
// большого инстанса укладывается с запасом.
const maxLineBytes = 64 << 20

// Conn — двунаправленный канал сообщений поверх пары потоков
// (stdin/stdout процесса воркера или io.Pipe).
//
// Send безопасен для конкурентного вызова; Receive — нет.
type Conn struct {
	scanner *bufio.Scanner

	mu sync.Mutex
	w  io.Writer
}

// NewConn создаёт Conn.
func NewConn(r io.Reader, w io.Writer) *Conn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Conn{scanner: scanner, w: w}
}

// Send отправляет сообщение типа t с payload p.
func (c *Conn) Send(t MessageType, p any) error {
	msg, err := NewMessage(t, p)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// SendMessage отправляет готовое сообщение.
func (c *Conn) SendMessage(msg *Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Receive читает следующее сообщение.
// Возвращает io.EOF, когда другая сторона закрыла поток.
func (c *Conn) Receive() (*Message, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return &msg, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Expect читает следующее сообщение и проверяет его тип.
func (c *Conn) Expect(t MessageType) (*Message, error) {
	msg, err := c.Receive()
	if err != nil {
		return nil, err
	}
	if msg.Type != t {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, msg.Type, t)
	}
	return msg, nil
}
