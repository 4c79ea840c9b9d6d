package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/houseofcat/rabbitreader/models"
)

// ChannelHost is an internal representation of amqp.Channel.
type ChannelHost struct {
	Channel    *amqp.Channel
	ID         uint64
	Errors     chan *amqp.Error
	deliveries <-chan amqp.Delivery
	handler    DeliveryHandler
	closed     bool
	connHost   *ConnectionHost
	chanLock   *sync.Mutex
}

// NewChannelHost opens a channel on connHost.
func NewChannelHost(connHost *ConnectionHost, id uint64) (*ChannelHost, error) {

	if connHost.IsClosed() {
		return nil, ErrConnectionClosed
	}

	chanHost := &ChannelHost{
		ID:       id,
		connHost: connHost,
		chanLock: &sync.Mutex{},
	}

	if err := chanHost.MakeChannel(); err != nil {
		return nil, err
	}

	return chanHost, nil
}

// MakeChannel tries to create (or re-create) the channel from the ConnectionHost its attached to.
func (ch *ChannelHost) MakeChannel() (err error) {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	ch.Channel, err = ch.connHost.Connection.Channel()
	if err != nil {
		return err
	}

	ch.Errors = make(chan *amqp.Error, 1)
	ch.Channel.NotifyClose(ch.Errors)
	ch.deliveries = nil
	ch.handler = nil
	ch.closed = false

	return nil
}

// ExchangeDeclare passes through to amqp.Channel.
func (ch *ChannelHost) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return ch.Channel.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

// ExchangeDeclarePassive passes through to amqp.Channel.
func (ch *ChannelHost) ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return ch.Channel.ExchangeDeclarePassive(name, kind, durable, autoDelete, internal, noWait, args)
}

// QueueDeclare passes through to amqp.Channel.
func (ch *ChannelHost) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return ch.Channel.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

// QueueDeclarePassive passes through to amqp.Channel.
func (ch *ChannelHost) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return ch.Channel.QueueDeclarePassive(name, durable, autoDelete, exclusive, noWait, args)
}

// QueueBind passes through to amqp.Channel.
func (ch *ChannelHost) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return ch.Channel.QueueBind(name, key, exchange, noWait, args)
}

// Qos passes through to amqp.Channel.
func (ch *ChannelHost) Qos(prefetchCount, prefetchSize int, global bool) error {
	return ch.Channel.Qos(prefetchCount, prefetchSize, global)
}

// Consume starts a manual-ack consumer on queue. Deliveries reach handler from inside Wait.
func (ch *ChannelHost) Consume(queue, consumerTag string, handler DeliveryHandler) error {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	if ch.closed {
		return ErrChannelClosed
	}

	deliveries, err := ch.Channel.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil)
	if err != nil {
		return err
	}

	ch.deliveries = deliveries
	ch.handler = handler

	return nil
}

// Wait blocks until a delivery was handed to the handler, the timeout elapsed, the consumer ended, or ctx is done.
func (ch *ChannelHost) Wait(ctx context.Context, timeout time.Duration) error {
	ch.chanLock.Lock()
	deliveries := ch.deliveries
	handler := ch.handler
	errs := ch.Errors
	ch.chanLock.Unlock()

	if deliveries == nil {
		return ErrNotConsuming
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-timeoutC:
		return ErrWaitTimeout

	case amqpErr, ok := <-errs:
		return ch.closedWith(amqpErr, ok)

	case delivery, ok := <-deliveries:
		if ok {
			handler(models.NewReceivedMessage(true, delivery))
			return nil
		}

		// amqp notifies close listeners before it closes the delivery channels,
		// so a pending close error here means the whole channel went down.
		select {
		case amqpErr, ok := <-errs:
			return ch.closedWith(amqpErr, ok)
		default:
		}

		ch.stopConsuming()
		return ErrConsumerClosed
	}
}

// closedWith marks the channel closed and reports the close reason, if the server sent one.
func (ch *ChannelHost) closedWith(amqpErr *amqp.Error, ok bool) error {

	ch.markClosed()
	if !ok || amqpErr == nil {
		return ErrConsumerClosed
	}

	return models.NewErrorMessage(amqpErr)
}

func (ch *ChannelHost) stopConsuming() {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	ch.deliveries = nil
	ch.handler = nil
}

func (ch *ChannelHost) markClosed() {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	ch.closed = true
	ch.deliveries = nil
	ch.handler = nil
}

// IsClosed reports whether this channel was closed by either side.
func (ch *ChannelHost) IsClosed() bool {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	return ch.closed || ch.connHost.IsClosed()
}

// Close allows for manual close of Amqp Channel kept internally. Closing twice returns ErrChannelClosed.
func (ch *ChannelHost) Close() error {
	ch.chanLock.Lock()
	defer ch.chanLock.Unlock()

	if ch.closed || ch.Channel == nil {
		return ErrChannelClosed
	}

	ch.closed = true
	ch.deliveries = nil
	ch.handler = nil

	err := ch.Channel.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return ErrChannelClosed
	}

	return err
}
