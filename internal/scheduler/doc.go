// Package scheduler — периодическая отправка вызовов задач (beat).
//
// Beat — тонкий слой поверх App: по cron-выражению или интервалу
// отправляет заданные вызовы. Гарантий точности времени нет.
//
// Структура:
//   - beat.go   — Beat (Tick, Run)
//   - entry.go  — описание записи расписания, загрузка из JSON
//   - cron.go   — парсинг cron-выражений и вычисление следующего времени
//   - lock.go   — leader election через pg_try_advisory_lock
//
// Использование:
//
//	beat, err := scheduler.New(scheduler.Config{
//	    Sender:  app,
//	    Entries: entries,
//	    Locker:  scheduler.NewPGLock(pool, scheduler.DefaultLockKey), // опционально
//	    Logger:  logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	beat.Run(ctx)
//
// Несколько экземпляров beat могут работать одновременно: тик выполняет
// только держатель блокировки. id вызова детерминирован по записи
// и моменту срабатывания, поэтому повторная отправка того же слота
// сохраняет id.
package scheduler
