package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchanges.
const (
	ExchangeTasks = "courier.tasks"
	ExchangeDLQ   = "courier.dlq"
)

// Dead letter.
const (
	QueueDLQTasks      = "dlq.tasks"
	RoutingKeyDLQTasks = "tasks"
)

// declareExchanges создаёт обменники и очередь dead letter.
func declareExchanges(ch *amqp.Channel, deadLetter bool) error {
	exchanges := []string{ExchangeTasks}
	if deadLetter {
		exchanges = append(exchanges, ExchangeDLQ)
	}

	for _, name := range exchanges {
		err := ch.ExchangeDeclare(
			name,     // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	if !deadLetter {
		return nil
	}

	if _, err := ch.QueueDeclare(QueueDLQTasks, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDLQTasks, err)
	}
	if err := ch.QueueBind(QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", QueueDLQTasks, ExchangeDLQ, err)
	}

	return nil
}

// queueArgs — аргументы очереди задач.
func queueArgs(deadLetter bool) amqp.Table {
	if !deadLetter {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLQ,
		"x-dead-letter-routing-key": RoutingKeyDLQTasks,
	}
}

// declareQueue создаёт durable очередь задач и привязывает её
// к courier.tasks с routing key, равным имени очереди.
func declareQueue(ch *amqp.Channel, name string, deadLetter bool) error {
	args := queueArgs(deadLetter)

	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}

	if err := ch.QueueBind(name, name, ExchangeTasks, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", name, ExchangeTasks, err)
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(queues []string, deadLetter bool) string {
	s := "courier.tasks (direct)\n"
	for _, q := range queues {
		s += fmt.Sprintf("  └── %s [routing: %s]\n", q, q)
	}
	if deadLetter {
		s += "courier.dlq (direct)\n"
		s += fmt.Sprintf("  └── %s [routing: %s]\n", QueueDLQTasks, RoutingKeyDLQTasks)
	}
	return s
}
