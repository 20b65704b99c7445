// Package worker — процесс (или горутина) воркера пула.
//
// # Обзор
//
// Worker получает tasks по каналу сообщений (пакет ipc), решает инстанс
// и отвечает task.completed. Данные инстанса воркер читает напрямую из
// shared memory по handles из payload.Descriptor; копируется только
// результат.
//
//	w := worker.New(worker.Config{Logger: logger})
//	if err := w.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
//
// # Обработка task
//
//  1. payload.Open — отображения буферов (read-only)
//  2. Solver из solver.Registry по params.Solver
//  3. Solve блокирует воркер на всё время поиска
//  4. Отображения снимаются на любом выходе
//  5. task.completed с Result или ошибкой
//
// # Ошибки
//
// Ошибка solver'а и паника не роняют процесс: task получает статус FAILED,
// сегменты удаляются воркером (payload.Unlink), в ответе перечисляются
// handles и флаг Released. Владелец (shm.Arena) затем видит, что сегмент
// уже удалён, и не считает это двойным освобождением.
//
// Если процесс воркера всё же умер, отказ task'а фиксирует пул.
package worker
