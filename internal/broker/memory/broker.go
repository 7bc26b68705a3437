// Package memory — in-process брокер.
//
// Семантика повторяет AMQP в объёме, нужном воркеру: очереди FIFO,
// явные ack/nack, requeue в хвост очереди, prefetch как лимит
// неподтверждённых доставок. Используется в тестах и в embedded-режиме
// (BROKER_URL=memory://).
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
)

// Broker — in-process брокер.
type Broker struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queues map[string]*queue
	closed bool

	// publishHook вызывается перед публикацией, защищён mu.
	publishHook func(queue string, msg *protocol.Message) error
}

type queue struct {
	messages []*envelope
	unacked  int
	prefetch int

	stats Stats
}

type envelope struct {
	msg         *protocol.Message
	redelivered bool
}

// Stats — счётчики очереди.
type Stats struct {
	Published int
	Delivered int
	Acked     int
	Nacked    int
	Requeued  int
	Dead      int
}

var _ broker.Broker = (*Broker)(nil)
var _ broker.PrefetchAdjuster = (*Broker)(nil)

// New создаёт брокер.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		logger: logger,
		queues: make(map[string]*queue),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Declare создаёт очереди.
func (b *Broker) Declare(_ context.Context, queues ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range queues {
		b.queueLocked(name)
	}
	return nil
}

func (b *Broker) queueLocked(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{}
		b.queues[name] = q
	}
	return q
}

// Publish кладёт копию сообщения в хвост очереди.
func (b *Broker) Publish(_ context.Context, queueName string, msg *protocol.Message) error {
	b.mu.Lock()
	hook := b.publishHook
	b.mu.Unlock()

	if hook != nil {
		if err := hook(queueName, msg); err != nil {
			return &broker.PublishError{Queue: queueName, Err: err}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &broker.PublishError{Queue: queueName, Err: broker.ErrClosed}
	}

	q := b.queueLocked(queueName)
	q.messages = append(q.messages, &envelope{msg: cloneMessage(msg)})
	q.stats.Published++
	b.cond.Broadcast()
	return nil
}

// SetPublishHook задаёт функцию, вызываемую перед каждой публикацией.
// Ошибка hook превращается в *broker.PublishError. nil снимает hook.
// Безопасен для вызова при работающих подписчиках.
func (b *Broker) SetPublishHook(hook func(queue string, msg *protocol.Message) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishHook = hook
}

// Consume запускает подписку на очередь.
func (b *Broker) Consume(ctx context.Context, queueName string, prefetch int) (<-chan broker.Delivery, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, broker.ErrClosed
	}
	q := b.queueLocked(queueName)
	q.prefetch = prefetch
	b.mu.Unlock()

	out := make(chan broker.Delivery)

	// Будим ожидающих при отмене ctx
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})

	go func() {
		defer close(out)
		defer stop()

		for {
			d, ok := b.next(ctx, queueName)
			if !ok {
				return
			}

			select {
			case out <- d:
			case <-ctx.Done():
				// Не доставлено — возвращаем в голову очереди
				b.mu.Lock()
				q := b.queueLocked(queueName)
				q.unacked--
				q.stats.Delivered--
				q.messages = append([]*envelope{{msg: d.msg, redelivered: d.redelivered}}, q.messages...)
				b.mu.Unlock()
				return
			}
		}
	}()

	return out, nil
}

// next ждёт сообщение с учётом prefetch.
func (b *Broker) next(ctx context.Context, queueName string) (*delivery, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if ctx.Err() != nil || b.closed {
			return nil, false
		}

		q := b.queueLocked(queueName)
		if len(q.messages) > 0 && (q.prefetch <= 0 || q.unacked < q.prefetch) {
			e := q.messages[0]
			q.messages = q.messages[1:]
			q.unacked++
			q.stats.Delivered++
			return &delivery{broker: b, queue: queueName, msg: e.msg, redelivered: e.redelivered}, true
		}

		b.cond.Wait()
	}
}

// IncreasePrefetch увеличивает prefetch очереди на 1.
func (b *Broker) IncreasePrefetch(_ context.Context, queueName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(queueName)
	if q.prefetch > 0 {
		q.prefetch++
	}
	b.cond.Broadcast()
	return nil
}

// DecreasePrefetch уменьшает prefetch очереди на 1.
func (b *Broker) DecreasePrefetch(_ context.Context, queueName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(queueName)
	if q.prefetch > 1 {
		q.prefetch--
	}
	return nil
}

// Close закрывает брокер; подписки завершаются.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
	return nil
}

// Stats возвращает счётчики очереди.
func (b *Broker) Stats(queueName string) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queueLocked(queueName).stats
}

// Len возвращает количество сообщений, ожидающих доставки.
func (b *Broker) Len(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queueLocked(queueName).messages)
}

// Unacked возвращает количество доставленных, но не подтверждённых сообщений.
func (b *Broker) Unacked(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queueLocked(queueName).unacked
}

// Messages возвращает копии сообщений, ожидающих доставки.
func (b *Broker) Messages(queueName string) []*protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(queueName)
	out := make([]*protocol.Message, 0, len(q.messages))
	for _, e := range q.messages {
		out = append(out, cloneMessage(e.msg))
	}
	return out
}

func (b *Broker) settle(queueName string, msg *protocol.Message, ack, requeue bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queueLocked(queueName)
	q.unacked--

	switch {
	case ack:
		q.stats.Acked++
	case requeue:
		q.stats.Nacked++
		q.stats.Requeued++
		q.messages = append(q.messages, &envelope{msg: msg, redelivered: true})
	default:
		q.stats.Nacked++
		q.stats.Dead++
	}

	b.cond.Broadcast()
	b.logger.Debug("delivery settled", "queue", queueName, "ack", ack, "requeue", requeue)
}

// delivery — доставка in-process брокера.
type delivery struct {
	broker      *Broker
	queue       string
	msg         *protocol.Message
	redelivered bool

	mu      sync.Mutex
	settled bool
}

func (d *delivery) Message() *protocol.Message { return d.msg }
func (d *delivery) Queue() string              { return d.queue }
func (d *delivery) Redelivered() bool          { return d.redelivered }

func (d *delivery) Ack(_ context.Context) error {
	if err := d.markSettled(); err != nil {
		return err
	}
	d.broker.settle(d.queue, d.msg, true, false)
	return nil
}

func (d *delivery) Nack(_ context.Context, requeue bool) error {
	if err := d.markSettled(); err != nil {
		return err
	}
	d.broker.settle(d.queue, d.msg, false, requeue)
	return nil
}

func (d *delivery) markSettled() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return fmt.Errorf("%w: queue %s", broker.ErrAlreadySettled, d.queue)
	}
	d.settled = true
	return nil
}

func cloneMessage(m *protocol.Message) *protocol.Message {
	c := &protocol.Message{
		ContentType: m.ContentType,
		Body:        append([]byte(nil), m.Body...),
	}
	if m.Headers != nil {
		c.Headers = make(map[string]any, len(m.Headers))
		for k, v := range m.Headers {
			c.Headers[k] = v
		}
	}
	return c
}
