package mq

import "errors"

var (
	// ErrNoChannel — соединение не открыто или переподключается.
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrUnknownEvent — тип сообщения не распознан.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrReject — Handler отказывается от сообщения без повторной доставки.
	ErrReject = errors.New("message rejected")
)
