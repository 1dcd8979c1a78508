package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobQueue carries generation jobs between the API, the CLI and the worker
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error

	// Consume delivers messages until ctx is cancelled or the connection drops.
	// The caller settles each message; prefetchCount caps unsettled deliveries.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages older than retention and reports how many were removed
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}

// MessageInterface is a delivered job that must be acked or nacked exactly once
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// Message is a job delivered by RabbitMQ
type Message struct {
	Job         *Job
	DeliveryTag uint64
	Channel     *amqp.Channel
}

var _ MessageInterface = (*Message)(nil)

func (m *Message) Ack() error {
	if m.Channel == nil {
		return ErrQueueClosed
	}
	return m.Channel.Ack(m.DeliveryTag, false)
}

// Nack rejects the delivery. With requeue false the broker routes it to the dead-letter queue.
func (m *Message) Nack(requeue bool) error {
	if m.Channel == nil {
		return ErrQueueClosed
	}
	return m.Channel.Nack(m.DeliveryTag, false, requeue)
}

func (m *Message) GetJob() *Job {
	return m.Job
}
