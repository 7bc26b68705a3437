// Package task описывает задачи и их реестр.
//
// # Задача
//
// Task — единый интерфейс, за которым скрыты конкретные типы аргументов:
//
//	type Task interface {
//	    Name() string
//	    Options() Options
//	    Bind(args []json.RawMessage, kwargs map[string]json.RawMessage) (Call, error)
//	}
//
// Bind декодирует аргументы в нативные типы задачи и возвращает Call —
// замыкание, готовое к выполнению. Ошибка Bind означает, что аргументы
// не подходят задаче (терминальный отказ, повтор не поможет).
//
// Типизированные задачи объявляются через Definition:
//
//	add := task.New("add", func(ctx context.Context, args [2]int) (int, error) {
//	    return args[0] + args[1], nil
//	}, task.WithMaxRetries(3))
//
// # Реестр
//
// Builder собирает задачи при старте; Build возвращает неизменяемый Registry.
// Lookup по готовому реестру безопасен из любого числа горутин без блокировок.
//
// # Ошибки задач
//
//   - Reject(err) — неповторяемый отказ
//   - Retry(err, countdown) — повтор с явной задержкой
//   - любая другая ошибка — отказ приложения, повтор по политике
package task
