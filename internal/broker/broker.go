// Package broker описывает возможности брокера сообщений,
// нужные клиенту и воркеру: publish, consume, ack, nack.
//
// Конкретные реализации:
//   - internal/mq            — AMQP (RabbitMQ)
//   - internal/broker/memory — in-process брокер для тестов и embedded-режима
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Courier/internal/protocol"
)

// Broker — транспорт для вызовов задач.
//
// Publish безопасен для конкурентного использования из любого числа горутин.
type Broker interface {
	// Declare объявляет очереди (идемпотентно).
	Declare(ctx context.Context, queues ...string) error

	// Publish публикует сообщение в очередь. Ошибка — *PublishError;
	// публикация никогда не теряется молча.
	Publish(ctx context.Context, queue string, msg *protocol.Message) error

	// Consume подписывается на очередь. Канал живёт, пока жив ctx:
	// после переподключения подписка восстанавливается без закрытия канала.
	// prefetch ограничивает количество неподтверждённых доставок.
	Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error)

	// Close закрывает соединение.
	Close() error
}

// Delivery — полученное сообщение, которое нужно подтвердить или отклонить.
//
// Ровно один из Ack/Nack должен быть вызван; держать Delivery дольше
// этого решения нельзя.
type Delivery interface {
	// Message возвращает сообщение.
	Message() *protocol.Message

	// Queue возвращает имя очереди, из которой получено сообщение.
	Queue() string

	// Redelivered — сообщение уже доставлялось ранее.
	Redelivered() bool

	// Ack подтверждает обработку.
	Ack(ctx context.Context) error

	// Nack отклоняет сообщение. requeue=false отправляет его в dead-letter
	// (если он настроен) или удаляет.
	Nack(ctx context.Context, requeue bool) error
}

// PrefetchAdjuster — брокер умеет менять prefetch подписки на лету.
//
// Воркер увеличивает prefetch на время удержания доставки с будущим ETA,
// чтобы отложенные сообщения не блокировали остальные.
type PrefetchAdjuster interface {
	IncreasePrefetch(ctx context.Context, queue string) error
	DecreasePrefetch(ctx context.Context, queue string) error
}

// Ошибки брокера.
var (
	// ErrConnect — брокер недоступен.
	ErrConnect = errors.New("broker connect failed")

	// ErrPublish — публикация не удалась (канал закрыт, брокер отверг сообщение).
	ErrPublish = errors.New("broker publish failed")

	// ErrClosed — брокер закрыт.
	ErrClosed = errors.New("broker closed")

	// ErrAlreadySettled — по доставке уже принято решение ack/nack.
	ErrAlreadySettled = errors.New("delivery already settled")
)

// ConnectError — ошибка подключения к брокеру.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }
func (e *ConnectError) Unwrap() error        { return e.Err }

// PublishError — ошибка публикации.
type PublishError struct {
	Queue string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Queue, e.Err)
}

func (e *PublishError) Is(target error) bool { return target == ErrPublish }
func (e *PublishError) Unwrap() error        { return e.Err }
