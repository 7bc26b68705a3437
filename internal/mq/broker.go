package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
)

// Config — конфигурация AMQP брокера.
type Config struct {
	// URL — amqp:// или amqps:// адрес.
	URL string

	// DeadLetter — объявлять очереди с x-dead-letter-exchange.
	DeadLetter bool

	Logger *slog.Logger
}

// Broker — broker.Broker поверх RabbitMQ.
type Broker struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger

	deadLetter bool

	mu        sync.Mutex
	declared  map[string]bool
	consumers map[string][]*Consumer
}

var _ broker.Broker = (*Broker)(nil)
var _ broker.PrefetchAdjuster = (*Broker)(nil)

// Dial подключается к RabbitMQ и объявляет обменники.
func Dial(ctx context.Context, cfg Config) (*Broker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL()
	}

	conn, err := NewConnection(cfg.URL, logger)
	if err != nil {
		return nil, err
	}

	b := &Broker{
		conn:       conn,
		publisher:  NewPublisher(conn, logger),
		logger:     logger,
		deadLetter: cfg.DeadLetter,
		declared:   make(map[string]bool),
		consumers:  make(map[string][]*Consumer),
	}

	err = conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return declareExchanges(ch, cfg.DeadLetter)
	})
	if err != nil {
		conn.Close()
		return nil, &broker.ConnectError{URL: redact(cfg.URL), Err: err}
	}

	return b, nil
}

// Declare объявляет очереди задач.
func (b *Broker) Declare(ctx context.Context, queues ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pending []string
	for _, q := range queues {
		if !b.declared[q] {
			pending = append(pending, q)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	err := b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, q := range pending {
			if err := declareQueue(ch, q, b.deadLetter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, q := range pending {
		b.declared[q] = true
	}

	b.logger.Info("topology declared", "queues", pending, "dead_letter", b.deadLetter)
	return nil
}

// Publish публикует сообщение; очередь объявляется при первой публикации.
func (b *Broker) Publish(ctx context.Context, queue string, msg *protocol.Message) error {
	if err := b.Declare(ctx, queue); err != nil {
		return &broker.PublishError{Queue: queue, Err: err}
	}
	return b.publisher.Publish(ctx, queue, msg)
}

// Consume подписывается на очередь.
func (b *Broker) Consume(ctx context.Context, queue string, prefetch int) (<-chan broker.Delivery, error) {
	if err := b.Declare(ctx, queue); err != nil {
		return nil, err
	}

	c := NewConsumer(b.conn, b.logger, queue, prefetch)
	out, err := c.Start(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.consumers[queue] = append(b.consumers[queue], c)
	b.mu.Unlock()

	return out, nil
}

// IncreasePrefetch увеличивает prefetch подписок очереди на 1.
func (b *Broker) IncreasePrefetch(_ context.Context, queue string) error {
	return b.adjust(queue, 1)
}

// DecreasePrefetch уменьшает prefetch подписок очереди на 1.
func (b *Broker) DecreasePrefetch(_ context.Context, queue string) error {
	return b.adjust(queue, -1)
}

func (b *Broker) adjust(queue string, delta int) error {
	b.mu.Lock()
	consumers := b.consumers[queue]
	b.mu.Unlock()

	if len(consumers) == 0 {
		return fmt.Errorf("no consumer for queue %s", queue)
	}

	var errs []error
	for _, c := range consumers {
		if err := c.adjustPrefetch(delta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close закрывает публикацию и соединение.
func (b *Broker) Close() error {
	return errors.Join(b.publisher.Close(), b.conn.Close())
}

// IsConnected проверяет состояние соединения.
func (b *Broker) IsConnected() bool {
	return b.conn.IsConnected()
}
