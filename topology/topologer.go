// Package topology declares the queues, exchanges and bindings a Reader consumes from.
package topology

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/broker"
	"github.com/houseofcat/rabbitreader/models"
)

// Topologer allows you to build RabbitMQ topology on a single channel.
// Declarations are idempotent at the broker, so building on every connect is safe.
type Topologer struct {
	channel broker.Channel
	logger  *zap.Logger
}

// NewTopologer builds you a new Topologer. A nil logger disables logging.
func NewTopologer(channel broker.Channel, logger *zap.Logger) *Topologer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Topologer{
		channel: channel,
		logger:  logger,
	}
}

// BuildTopology declares exchanges first so the bindings that follow have something to bind to.
// It stops at the first failure.
func (top *Topologer) BuildTopology(config *models.TopologyConfig) error {

	if err := top.BuildExchanges(config.Exchanges); err != nil {
		return err
	}

	if err := top.BuildQueues(config.Queues); err != nil {
		return err
	}

	return top.BindQueues(config.QueueBindings)
}

// BuildExchanges declares each exchange in order.
func (top *Topologer) BuildExchanges(exchanges []*models.Exchange) error {

	for _, exchange := range exchanges {
		if err := top.CreateExchangeFromConfig(exchange); err != nil {
			return err
		}
	}

	return nil
}

// BuildQueues declares each queue in order.
func (top *Topologer) BuildQueues(queues []*models.Queue) error {

	for _, queue := range queues {
		if err := top.CreateQueueFromConfig(queue); err != nil {
			return err
		}
	}

	return nil
}

// BindQueues binds each queue to its exchange in order.
func (top *Topologer) BindQueues(bindings []*models.QueueBinding) error {

	for _, binding := range bindings {
		if err := top.QueueBind(binding); err != nil {
			return err
		}
	}

	return nil
}

// CreateExchangeFromConfig declares exchange, passively when PassiveDeclare is set.
func (top *Topologer) CreateExchangeFromConfig(exchange *models.Exchange) error {

	declare := top.channel.ExchangeDeclare
	if exchange.PassiveDeclare {
		declare = top.channel.ExchangeDeclarePassive
	}

	err := declare(exchange.Name, exchange.Type, exchange.Durable, exchange.AutoDelete, exchange.InternalOnly, exchange.NoWait, exchange.Args)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange.Name, err)
	}

	top.logger.Debug("declared exchange", zap.String("exchange", exchange.Name), zap.String("type", exchange.Type))
	return nil
}

// CreateQueueFromConfig declares queue, passively when PassiveDeclare is set.
// The reply's message count is logged so a backlog is visible at connect time.
func (top *Topologer) CreateQueueFromConfig(queue *models.Queue) error {

	declare := top.channel.QueueDeclare
	if queue.PassiveDeclare {
		declare = top.channel.QueueDeclarePassive
	}

	declared, err := declare(queue.Name, queue.Durable, queue.AutoDelete, queue.Exclusive, queue.NoWait, queue.Args)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue.Name, err)
	}

	top.logger.Debug("declared queue",
		zap.String("queue", queue.Name),
		zap.Int("messages", declared.Messages),
		zap.Int("consumers", declared.Consumers))
	return nil
}

// QueueBind binds a queue to an exchange with the binding's routing key.
func (top *Topologer) QueueBind(binding *models.QueueBinding) error {

	err := top.channel.QueueBind(binding.QueueName, binding.RoutingKey, binding.ExchangeName, binding.NoWait, binding.Args)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", binding.QueueName, binding.ExchangeName, err)
	}

	return nil
}
