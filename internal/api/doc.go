// Package api содержит HTTP API отправителя.
//
// Структура:
//   - handler.go      — Handler с DI (App, реестр, logger) и маршруты
//   - middleware.go   — middleware (request id, logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - task_handler.go — обработчики для /tasks и /results
//
// API позволяет отправлять вызовы задач и читать итоги по HTTP
// для клиентов, которые не работают с брокером напрямую.
package api
