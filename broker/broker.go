// Package broker is the small slice of AMQP the Reader needs: dial, declare, bind, consume and wait.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/streadway/amqp"

	"github.com/houseofcat/rabbitreader/models"
)

var (
	// ErrWaitTimeout is returned by Channel.Wait when the timeout elapsed with no delivery.
	// you can check for this error with errors.Is
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrNotConsuming is returned by Channel.Wait before Consume has been called.
	// you can check for this error with errors.Is
	ErrNotConsuming = errors.New("channel has no registered consumer")

	// ErrConsumerClosed is returned by Channel.Wait once the server or the client ended the consumer.
	// you can check for this error with errors.Is
	ErrConsumerClosed = errors.New("consumer is closed")

	// ErrConnectionClosed is returned when operating on a connection that is already closed.
	// you can check for this error with errors.Is
	ErrConnectionClosed = errors.New("connection is already closed")

	// ErrChannelClosed is returned when operating on a channel that is already closed.
	// you can check for this error with errors.Is
	ErrChannelClosed = errors.New("channel is already closed")
)

// DeliveryHandler receives each delivery. It runs on the goroutine that called Wait.
type DeliveryHandler func(msg *models.ReceivedMessage)

// Dialer opens connections to a broker.
type Dialer interface {
	Dial(config *models.ReaderConfig, connectionName string) (Connection, error)
}

// Connection is one broker connection.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Channel is one channel on a Connection. The declare methods mirror amqp.Channel.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error

	// Consume registers handler as the single consumer of queue, with manual acknowledgement.
	Consume(queue, consumerTag string, handler DeliveryHandler) error

	// Wait blocks until one delivery was handed to the handler, the timeout elapsed (ErrWaitTimeout),
	// the consumer ended (ErrConsumerClosed or the server's *models.ErrorMessage), or ctx was done.
	// A zero timeout waits until one of the others happens.
	Wait(ctx context.Context, timeout time.Duration) error

	IsClosed() bool
	Close() error
}
