// Package pool — фиксированный пул воркеров.
//
// # Обзор
//
// Pool создаётся один раз на run и переиспользуется всеми batch'ами:
//
//	p := pool.New(pool.Config{
//	    Workers:     4,
//	    Spawner:     &pool.ExecSpawner{},
//	    TaskTimeout: 10 * time.Minute,
//	    Logger:      logger,
//	})
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Shutdown()
//
//	replies := make(chan pool.Completion, len(jobs))
//	for _, job := range jobs {
//	    p.Submit(ctx, job, replies)
//	}
//
// # Слоты
//
// Каждый из W слотов — горутина, владеющая одним воркером. Слоты забирают
// tasks из общего канала; completion приходит в канал replies, указанный
// при Submit, в порядке завершения. Позиция результата определяется
// Completion.Index, а не порядком прихода.
//
// # Отказы
//
//   - воркер закрыл поток (упал) — ErrWorkerDied
//   - истёк TaskTimeout — воркер убивается, ErrTaskDeadline
//   - solver вернул ошибку — воркер жив, сегменты удалены им самим (Released)
//
// В первых двух случаях слот сразу запускает новый воркер.
//
// # Spawner
//
// ExecSpawner запускает `tspbatch worker` отдельным процессом (stdin/stdout —
// канал сообщений, stderr — логи). InProcessSpawner запускает воркер
// горутиной через io.Pipe; используется в тестах и для W=1.
package pool
