// Package orchestrator — BatchRunner: выполнение run'а над набором инстансов.
//
// Runner отвечает за:
//   - Проверку входа до размещения первого буфера (включая 2*max_depth <= city_num)
//   - Разбиение на batch'и с учётом бюджета памяти
//   - Размещение буферов, отправку tasks в пул и барьер ожидания
//   - Освобождение буферов и контроль утечек после каждого batch'а
//   - Сборку отчёта, выровненного по входному порядку
//   - События batch.completed / run.completed и сохранение отчёта
//
// Batch i+1 не размещает буферы, пока буферы batch'а i не освобождены,
// поэтому пик памяти ограничен одним batch'ем.
package orchestrator
