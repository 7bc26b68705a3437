// Package protocol описывает формат сообщений Courier.
//
// Структура:
//   - envelope.go — Envelope и Headers (вызов задачи + служебные заголовки)
//   - document.go — самодостаточная форма конверта (Encode/Decode)
//   - message.go  — broker-native форма: заголовки отдельно от тела
//   - codec.go    — кодеки тела: application/json, application/x-msgpack
//   - errors.go   — ProtocolError
//
// Аргументы (args/kwargs) хранятся как json.RawMessage: протокол не знает
// типов аргументов конкретной задачи. Декодирование в нативные типы
// выполняет кодек аргументов задачи (пакет task).
//
// Заголовки (retries, eta, expires, ...) передаются в метаданных брокера,
// а не в теле. Повторная публикация при retry меняет только заголовки,
// тело не перекодируется.
package protocol
