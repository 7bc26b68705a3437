// Package cli реализует инструмент командной строки Courier.
//
// # Обзор
//
// CLI отправляет вызовы задач и читает их итоги напрямую через брокер
// и хранилище итогов (App), без промежуточного API.
//
// # Ключевые компоненты
//
// ## Session
//
// Открытые ресурсы: App, реестр известных задач и функция закрытия.
// Создаётся лениво через sessionFn после парсинга PersistentFlags.
//
// ## Output
//
// Представления вызова, итога, списка задач и расписания. Два режима:
//   - Таблицы (text/tabwriter) — по умолчанию; длинные результаты и
//     ошибки обрезаются, пустые ячейки выводятся как "-"
//   - JSON — с флагом --json, объекты печатаются без изменений
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: courier result ID --json | jq .
//
// ## Commands
//
//   - send: отправить вызов задачи (опционально дождаться итога)
//   - result: показать итог по id
//   - tasks: список известных задач
//   - schedule: проверить файл расписания beat
//
// Аргументы send разбираются как JSON, если это валидный JSON,
// иначе передаются строкой: `courier send add 2 3` → args [2, 3].
package cli
