// Package ipc — протокол сообщений между оркестратором и процессами воркеров.
//
// Каждое сообщение — одна строка JSON с конвертом Message
// (id, type, payload, timestamp). Последовательность со стороны воркера:
//
//	worker.ready → (task.assign → task.completed)* → EOF | worker.shutdown
//
// Полезные данные инстанса в сообщения не попадают: task.assign несёт
// только payload.Descriptor с handles shared-буферов.
package ipc
