package models

import "github.com/streadway/amqp"

// Exchange allows for you to create Exchange topology.
type Exchange struct {
	Name           string     `json:"Name" yaml:"Name"`
	Type           string     `json:"Type" yaml:"Type"` // "direct", "fanout", "topic", "headers"
	PassiveDeclare bool       `json:"PassiveDeclare" yaml:"PassiveDeclare"`
	Durable        bool       `json:"Durable" yaml:"Durable"`
	AutoDelete     bool       `json:"AutoDelete" yaml:"AutoDelete"`
	InternalOnly   bool       `json:"InternalOnly" yaml:"InternalOnly"`
	NoWait         bool       `json:"NoWait" yaml:"NoWait"`
	Args           amqp.Table `json:"Args,omitempty" yaml:"Args,omitempty"`
}

// Queue allows for you to create Queue topology.
type Queue struct {
	Name           string     `json:"Name" yaml:"Name"`
	PassiveDeclare bool       `json:"PassiveDeclare" yaml:"PassiveDeclare"`
	Durable        bool       `json:"Durable" yaml:"Durable"`
	AutoDelete     bool       `json:"AutoDelete" yaml:"AutoDelete"`
	Exclusive      bool       `json:"Exclusive" yaml:"Exclusive"`
	NoWait         bool       `json:"NoWait" yaml:"NoWait"`
	Args           amqp.Table `json:"Args,omitempty" yaml:"Args,omitempty"`
}

// QueueBinding allows for you to create Bindings between a Queue and Exchange.
type QueueBinding struct {
	QueueName    string     `json:"QueueName" yaml:"QueueName"`
	ExchangeName string     `json:"ExchangeName" yaml:"ExchangeName"`
	RoutingKey   string     `json:"RoutingKey" yaml:"RoutingKey"`
	NoWait       bool       `json:"NoWait" yaml:"NoWait"`
	Args         amqp.Table `json:"Args,omitempty" yaml:"Args,omitempty"`
}

// TopologyConfig is the topology a Reader declares before it consumes.
type TopologyConfig struct {
	Exchanges     []*Exchange     `json:"Exchanges" yaml:"Exchanges"`
	Queues        []*Queue        `json:"Queues" yaml:"Queues"`
	QueueBindings []*QueueBinding `json:"QueueBindings" yaml:"QueueBindings"`
}

// TopologyFromConfig builds the durable queue, and the exchange plus binding when an exchange is configured.
// With PassiveDeclare the queue and exchange must already exist on the broker.
func TopologyFromConfig(rc *ReaderConfig) *TopologyConfig {

	topology := &TopologyConfig{
		Queues: []*Queue{
			{
				Name:           rc.Queue,
				Durable:        true,
				PassiveDeclare: rc.PassiveDeclare,
			},
		},
	}

	if rc.Exchange == "" {
		return topology
	}

	exchangeType := rc.ExchangeType
	if exchangeType == "" {
		exchangeType = DefaultExchangeType
	}

	topology.Exchanges = []*Exchange{
		{
			Name:           rc.Exchange,
			Type:           exchangeType,
			Durable:        true,
			PassiveDeclare: rc.PassiveDeclare,
		},
	}

	topology.QueueBindings = []*QueueBinding{
		{
			QueueName:    rc.Queue,
			ExchangeName: rc.Exchange,
			RoutingKey:   rc.RoutingKey,
		},
	}

	return topology
}
