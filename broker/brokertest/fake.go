// Package brokertest provides an in-memory broker for exercising code written against package broker.
package brokertest

import (
	"context"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/houseofcat/rabbitreader/broker"
	"github.com/houseofcat/rabbitreader/models"
)

// Stages that can be made to fail with FakeDialer.Fail.
const (
	StageDial            = "dial"
	StageChannel         = "channel"
	StageQueueDeclare    = "queue_declare"
	StageExchangeDeclare = "exchange_declare"
	StageQueueBind       = "queue_bind"
	StageQos             = "qos"
	StageConsume         = "consume"
)

const queueCapacity = 1024

// FakeDialer is a single-queue in-memory broker. Every channel it hands out consumes the same queue.
type FakeDialer struct {
	mu          sync.Mutex
	failures    map[string]error
	queue       chan amqp.Delivery
	nextTag     uint64
	dials       int
	connections []*FakeConnection
	Acker       *FakeAcknowledger
}

// NewFakeDialer creates an empty FakeDialer.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		failures: make(map[string]error),
		queue:    make(chan amqp.Delivery, queueCapacity),
		Acker:    NewFakeAcknowledger(),
	}
}

// Fail makes every later call at stage return err. A nil err clears the failure.
func (fd *FakeDialer) Fail(stage string, err error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if err == nil {
		delete(fd.failures, stage)
		return
	}
	fd.failures[stage] = err
}

func (fd *FakeDialer) failure(stage string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return fd.failures[stage]
}

// Publish enqueues body as the next delivery.
func (fd *FakeDialer) Publish(body []byte) {
	fd.mu.Lock()
	fd.nextTag++
	delivery := amqp.Delivery{
		Acknowledger: fd.Acker,
		DeliveryTag:  fd.nextTag,
		Body:         body,
		Timestamp:    time.Now(),
	}
	fd.mu.Unlock()

	fd.queue <- delivery
}

// Pending returns the number of published but undelivered messages.
func (fd *FakeDialer) Pending() int {
	return len(fd.queue)
}

// Dial returns a new FakeConnection unless the dial stage is failing.
func (fd *FakeDialer) Dial(config *models.ReaderConfig, connectionName string) (broker.Connection, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	fd.dials++
	if err := fd.failures[StageDial]; err != nil {
		return nil, err
	}

	conn := &FakeConnection{Name: connectionName, dialer: fd}
	fd.connections = append(fd.connections, conn)
	return conn, nil
}

// Dials returns how many times Dial was called.
func (fd *FakeDialer) Dials() int {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return fd.dials
}

// LastConnection returns the most recent successful connection, or nil.
func (fd *FakeDialer) LastConnection() *FakeConnection {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if len(fd.connections) == 0 {
		return nil
	}
	return fd.connections[len(fd.connections)-1]
}

// Consumes returns how many consumers were registered across all channels.
func (fd *FakeDialer) Consumes() int {
	fd.mu.Lock()
	conns := append([]*FakeConnection{}, fd.connections...)
	fd.mu.Unlock()

	total := 0
	for _, conn := range conns {
		for _, ch := range conn.Channels() {
			total += ch.ConsumeCalls()
		}
	}
	return total
}

// FakeConnection is a connection handed out by FakeDialer.
type FakeConnection struct {
	Name     string
	mu       sync.Mutex
	closed   bool
	closes   int
	channels []*FakeChannel
	dialer   *FakeDialer
}

// Channel opens a FakeChannel unless the channel stage is failing.
func (fc *FakeConnection) Channel() (broker.Channel, error) {
	if err := fc.dialer.failure(StageChannel); err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.closed {
		return nil, broker.ErrConnectionClosed
	}

	ch := &FakeChannel{
		dialer:    fc.dialer,
		conn:      fc,
		cancelled: make(chan struct{}),
	}
	fc.channels = append(fc.channels, ch)
	return ch, nil
}

// Channels returns every channel opened on this connection.
func (fc *FakeConnection) Channels() []*FakeChannel {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return append([]*FakeChannel{}, fc.channels...)
}

// IsClosed reports whether Close or Disconnect was called.
func (fc *FakeConnection) IsClosed() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.closed
}

// Close closes the connection and its channels.
func (fc *FakeConnection) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.closes++
	if fc.closed {
		return broker.ErrConnectionClosed
	}

	fc.closed = true
	for _, ch := range fc.channels {
		ch.cancel()
	}
	return nil
}

// Closes returns how many times Close was called.
func (fc *FakeConnection) Closes() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.closes
}

// Disconnect simulates the broker dropping the connection.
func (fc *FakeConnection) Disconnect() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.closed = true
	for _, ch := range fc.channels {
		ch.cancel()
	}
}

// ExchangeDeclaration records one ExchangeDeclare call.
type ExchangeDeclaration struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
	Passive    bool
}

// QueueDeclaration records one QueueDeclare call.
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Passive    bool
}

// Binding records one QueueBind call.
type Binding struct {
	Queue      string
	RoutingKey string
	Exchange   string
}

// FakeChannel is a channel handed out by FakeConnection.
type FakeChannel struct {
	mu           sync.Mutex
	dialer       *FakeDialer
	conn         *FakeConnection
	handler      broker.DeliveryHandler
	consumeCalls int
	closed       bool
	cancelled    chan struct{}
	cancelOnce   sync.Once

	Exchanges     []ExchangeDeclaration
	Queues        []QueueDeclaration
	Bindings      []Binding
	PrefetchCount int
	ConsumerTag   string
}

func (fc *FakeChannel) cancel() {
	fc.cancelOnce.Do(func() {
		fc.mu.Lock()
		fc.closed = true
		fc.mu.Unlock()
		close(fc.cancelled)
	})
}

// ExchangeDeclare records the declaration.
func (fc *FakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if err := fc.dialer.failure(StageExchangeDeclare); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.Exchanges = append(fc.Exchanges, ExchangeDeclaration{Name: name, Kind: kind, Durable: durable, AutoDelete: autoDelete})
	return nil
}

// ExchangeDeclarePassive records the declaration.
func (fc *FakeChannel) ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if err := fc.dialer.failure(StageExchangeDeclare); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.Exchanges = append(fc.Exchanges, ExchangeDeclaration{Name: name, Kind: kind, Durable: durable, AutoDelete: autoDelete, Passive: true})
	return nil
}

// QueueDeclare records the declaration.
func (fc *FakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if err := fc.dialer.failure(StageQueueDeclare); err != nil {
		return amqp.Queue{}, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.Queues = append(fc.Queues, QueueDeclaration{Name: name, Durable: durable, AutoDelete: autoDelete, Exclusive: exclusive})
	return amqp.Queue{Name: name, Messages: fc.dialer.Pending()}, nil
}

// QueueDeclarePassive records the declaration.
func (fc *FakeChannel) QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if err := fc.dialer.failure(StageQueueDeclare); err != nil {
		return amqp.Queue{}, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.Queues = append(fc.Queues, QueueDeclaration{Name: name, Durable: durable, AutoDelete: autoDelete, Exclusive: exclusive, Passive: true})
	return amqp.Queue{Name: name, Messages: fc.dialer.Pending()}, nil
}

// QueueBind records the binding.
func (fc *FakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	if err := fc.dialer.failure(StageQueueBind); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.Bindings = append(fc.Bindings, Binding{Queue: name, RoutingKey: key, Exchange: exchange})
	return nil
}

// Qos records the prefetch count.
func (fc *FakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	if err := fc.dialer.failure(StageQos); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.PrefetchCount = prefetchCount
	return nil
}

// Consume registers handler.
func (fc *FakeChannel) Consume(queue, consumerTag string, handler broker.DeliveryHandler) error {
	if err := fc.dialer.failure(StageConsume); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.closed {
		return broker.ErrChannelClosed
	}

	fc.consumeCalls++
	fc.handler = handler
	fc.ConsumerTag = consumerTag
	return nil
}

// ConsumeCalls returns how many times Consume succeeded on this channel.
func (fc *FakeChannel) ConsumeCalls() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.consumeCalls
}

// CancelConsumer simulates the broker cancelling the consumer, e.g. after the queue was deleted.
func (fc *FakeChannel) CancelConsumer() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.handler = nil
}

// Wait hands at most one queued delivery to the handler.
func (fc *FakeChannel) Wait(ctx context.Context, timeout time.Duration) error {
	fc.mu.Lock()
	handler := fc.handler
	closed := fc.closed
	fc.mu.Unlock()

	if closed {
		return broker.ErrConsumerClosed
	}

	if handler == nil {
		return broker.ErrNotConsuming
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
		return broker.ErrWaitTimeout
	case <-fc.cancelled:
		return broker.ErrConsumerClosed
	case delivery := <-fc.dialer.queue:
		handler(models.NewReceivedMessage(true, delivery))
		return nil
	}
}

// IsClosed reports whether the channel or its connection is closed.
func (fc *FakeChannel) IsClosed() bool {
	fc.mu.Lock()
	closed := fc.closed
	fc.mu.Unlock()

	return closed || fc.conn.IsClosed()
}

// Close closes the channel. Closing twice returns broker.ErrChannelClosed.
func (fc *FakeChannel) Close() error {
	fc.mu.Lock()
	closed := fc.closed
	fc.mu.Unlock()

	if closed {
		return broker.ErrChannelClosed
	}

	fc.cancel()
	return nil
}

// FakeAcknowledger records acknowledgements by delivery tag.
type FakeAcknowledger struct {
	mu      sync.Mutex
	err     error
	acks    []uint64
	nacks   []uint64
	requeue []bool
	rejects []uint64
}

// NewFakeAcknowledger creates an empty FakeAcknowledger.
func NewFakeAcknowledger() *FakeAcknowledger {
	return &FakeAcknowledger{}
}

// FailWith makes later acknowledgements return err. A nil err clears it.
func (fa *FakeAcknowledger) FailWith(err error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fa.err = err
}

// Ack records tag.
func (fa *FakeAcknowledger) Ack(tag uint64, multiple bool) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.err != nil {
		return fa.err
	}
	fa.acks = append(fa.acks, tag)
	return nil
}

// Nack records tag and requeue.
func (fa *FakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.err != nil {
		return fa.err
	}
	fa.nacks = append(fa.nacks, tag)
	fa.requeue = append(fa.requeue, requeue)
	return nil
}

// Reject records tag.
func (fa *FakeAcknowledger) Reject(tag uint64, requeue bool) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.err != nil {
		return fa.err
	}
	fa.rejects = append(fa.rejects, tag)
	return nil
}

// Acks returns the acked tags in order.
func (fa *FakeAcknowledger) Acks() []uint64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return append([]uint64{}, fa.acks...)
}

// Nacks returns the nacked tags in order and whether each asked for a requeue.
func (fa *FakeAcknowledger) Nacks() ([]uint64, []bool) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return append([]uint64{}, fa.nacks...), append([]bool{}, fa.requeue...)
}

// Rejects returns the rejected tags in order.
func (fa *FakeAcknowledger) Rejects() []uint64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return append([]uint64{}, fa.rejects...)
}

var (
	_ broker.Dialer     = (*FakeDialer)(nil)
	_ broker.Connection = (*FakeConnection)(nil)
	_ broker.Channel    = (*FakeChannel)(nil)
	_ amqp.Acknowledger = (*FakeAcknowledger)(nil)
)
