// Package payload группирует буферы одного инстанса в единицу передачи.
//
// Оркестратор вызывает Write и передаёт воркеру Descriptor (только handles);
// воркер вызывает Open, решает по Views.Input и закрывает отображения.
// Освобождение сегментов в обычном пути делает владелец (Payload.Release),
// в аварийном — воркер (Unlink).
package payload
