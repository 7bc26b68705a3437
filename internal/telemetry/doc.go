// Package telemetry обеспечивает наблюдаемость воркера и клиента.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Воркер экспортирует метрики на /metrics endpoint.
package telemetry
