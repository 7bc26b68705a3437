package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Courier/internal/broker"
	"github.com/shaiso/Courier/internal/protocol"
)

// ErrNacked — брокер не подтвердил публикацию.
var ErrNacked = errors.New("publish not confirmed by broker")

// Publisher публикует сообщения в courier.tasks в режиме publisher confirms.
//
// Публикации сериализуются: у канала один поток подтверждений.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// channel возвращает открытый канал в режиме confirm. Вызывается под mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	p.ch = ch
	return ch, nil
}

// Publish публикует сообщение в очередь и ждёт подтверждения брокера.
func (p *Publisher) Publish(ctx context.Context, queue string, msg *protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return &broker.PublishError{Queue: queue, Err: err}
	}

	pub := amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		Timestamp:    time.Now(),
		Headers:      amqp.Table(msg.Headers),
		Body:         msg.Body,
	}
	if id, ok := msg.Headers[protocol.HeaderID].(string); ok {
		pub.MessageId = id
		pub.CorrelationId = id
	}
	if replyTo, ok := msg.Headers[protocol.HeaderReplyTo].(string); ok {
		pub.ReplyTo = replyTo
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		ExchangeTasks, // exchange
		queue,         // routing key
		false,         // mandatory
		false,         // immediate
		pub,
	)
	if err != nil {
		return &broker.PublishError{Queue: queue, Err: err}
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return &broker.PublishError{Queue: queue, Err: err}
	}
	if !ok {
		return &broker.PublishError{Queue: queue, Err: ErrNacked}
	}

	p.logger.Debug("published message",
		"exchange", ExchangeTasks,
		"routing_key", queue,
		"message_id", pub.MessageId,
	)

	return nil
}

// Close закрывает канал публикации.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	if err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
