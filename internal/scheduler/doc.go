// Package scheduler запускает плановые сводки (sweeps) по cron-выражению.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Expr:   "0 3 * * *",
//	    Job:    func(ctx context.Context) error { ... },
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return sched.Run(ctx)
package scheduler
