// Package worker выполняет вызовы задач, полученные из брокера.
//
// # Обзор
//
// Worker потребляет одну или несколько очередей, декодирует конверты,
// находит задачу в реестре и выполняет её с таймаутом. Итог решает,
// что делать с доставкой:
//
//   - успех → сохранить итог в бэкенд, ack
//   - повторяемый отказ → опубликовать копию с retries+1 и новым ETA, затем ack
//   - терминальный отказ → сохранить итог, ack
//   - ошибка протокола / неизвестная задача / плохие аргументы → ack
//     (или nack без requeue при DeadLetter), задача не выполняется
//
// Ack оригинала при повторе выполняется только после успешной публикации
// копии. Если публикация не удалась, доставка возвращается брокеру.
//
// # Конкурентность
//
// Доставки всех очередей сходятся в один канал, и единственный цикл
// занимает слот конкурентности до чтения следующей доставки из любой
// очереди. При Concurrency выполняющихся вызовов чтение из брокера
// останавливается, а пустая очередь слот не держит.
// Доставка с будущим ETA удерживается без слота; брокер, реализующий
// broker.PrefetchAdjuster, на это время получает prefetch+1.
//
// # Остановка
//
//	w, err := worker.New(worker.Config{
//	    Broker:   b,
//	    Registry: registry,
//	    Backend:  results,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// Stop прекращает потребление и ждёт выполняющиеся вызовы не дольше
// ShutdownGrace. Оставшиеся бросаются: их доставки не подтверждаются
// и возвращаются брокеру для повторной доставки. Abandon делает то же
// немедленно (второй сигнал).
//
// Контексты задач по умолчанию не отменяются при остановке;
// CancelOnShutdown меняет это поведение.
package worker
