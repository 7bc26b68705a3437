// Package mq — AMQP-реализация broker.Broker поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация с publisher confirms
//   - consumer.go   — потребление с ручным ack и восстановлением после reconnect
//   - broker.go     — сборка в broker.Broker
//
// Метаданные конверта передаются в AMQP headers, аргументы — в теле.
//
// Exchanges:
//   - courier.tasks — вызовы задач (routing key = имя очереди)
//   - courier.dlq   — dead letter
package mq
