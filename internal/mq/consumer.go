package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
)

const resubscribeDelay = 2 * time.Second

// Consumer потребляет сообщения из одной очереди на собственном канале.
//
// После разрыва соединения подписка восстанавливается; выходной канал
// закрывается только при отмене контекста или закрытии соединения.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	queue  string

	mu       sync.Mutex
	ch       *amqp.Channel
	prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, queue string, prefetch int) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    queue,
		prefetch: prefetch,
	}
}

// Start запускает потребление и возвращает канал доставок.
func (c *Consumer) Start(ctx context.Context) (<-chan broker.Delivery, error) {
	deliveries, err := c.setupConsume()
	if err != nil {
		return nil, err
	}

	out := make(chan broker.Delivery)
	go c.consume(ctx, deliveries, out)

	return out, nil
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- broker.Delivery) {
	defer close(out)
	defer c.closeChannel()

	c.logger.Info("consumer started", "queue", c.queue)

	for {
		if deliveries != nil {
			if err := c.forward(ctx, deliveries, out); err != nil && ctx.Err() != nil {
				return
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
		}

		// Ждём переподключения; ошибка уровня канала не рвёт соединение,
		// поэтому пробуем и по таймеру
		select {
		case <-ctx.Done():
			return
		case <-c.conn.Done():
			return
		case <-c.conn.ReconnectNotify():
		case <-time.After(resubscribeDelay):
		}

		var err error
		deliveries, err = c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			deliveries = nil
			continue
		}
		c.logger.Info("reconnected, consumer restarted", "queue", c.queue)
	}
}

// setupConsume открывает канал, выставляет prefetch и подписывается.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	prefetch := c.prefetch
	c.mu.Unlock()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,                     // queue
		"courier-"+uuid.NewString(), // consumer tag
		false,                       // auto-ack (ack вручную)
		false,                       // exclusive
		false,                       // no-local
		false,                       // no-wait
		nil,                         // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()

	return deliveries, nil
}

// forward перекладывает доставки в выходной канал.
func (c *Consumer) forward(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- broker.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			d := &delivery{raw: raw, queue: c.queue, msg: toMessage(raw)}

			c.logger.Debug("received message",
				"queue", c.queue,
				"message_id", raw.MessageId,
				"redelivered", raw.Redelivered,
			)

			select {
			case out <- d:
			case <-ctx.Done():
				// Не передано обработчику — возвращаем в очередь
				_ = raw.Nack(false, true)
				return ctx.Err()
			}
		}
	}
}

// adjustPrefetch меняет prefetch канала подписки на delta.
func (c *Consumer) adjustPrefetch(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.prefetch + delta
	if next < 1 {
		return nil
	}
	c.prefetch = next

	if c.ch == nil || c.ch.IsClosed() {
		// Применится при восстановлении подписки
		return nil
	}
	if err := c.ch.Qos(next, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	c.logger.Debug("prefetch adjusted", "queue", c.queue, "prefetch", next)
	return nil
}

func (c *Consumer) closeChannel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
}

// toMessage переводит AMQP доставку в сообщение протокола.
func toMessage(raw amqp.Delivery) *protocol.Message {
	var headers map[string]any
	if len(raw.Headers) > 0 {
		headers = map[string]any(raw.Headers)
	}
	return &protocol.Message{
		ContentType: raw.ContentType,
		Headers:     headers,
		Body:        raw.Body,
	}
}

// delivery — AMQP доставка.
type delivery struct {
	raw   amqp.Delivery
	queue string
	msg   *protocol.Message

	mu      sync.Mutex
	settled bool
}

func (d *delivery) Message() *protocol.Message { return d.msg }
func (d *delivery) Queue() string              { return d.queue }
func (d *delivery) Redelivered() bool          { return d.raw.Redelivered }

// Ack подтверждает успешную обработку сообщения.
func (d *delivery) Ack(_ context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *delivery) Nack(_ context.Context, requeue bool) error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.raw.Nack(false, requeue)
}

func (d *delivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return fmt.Errorf("%w: message %s", broker.ErrAlreadySettled, d.raw.MessageId)
	}
	d.settled = true
	return nil
}
