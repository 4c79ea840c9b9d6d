package reader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/topology"
)

// Connection failure stages, used in logs, metrics and ConnectionError.Op.
const (
	stageDial     = "dial"
	stageChannel  = "channel"
	stageTopology = "topology"
	stageQos      = "qos"
	stageConsume  = "consume"
)

// CanReadSource connects and reports whether the broker is reachable.
// The connection stays open for the following GetNextRecord calls.
func (r *Reader) CanReadSource(ctx context.Context, source string) bool {
	return r.Connect(ctx, source) == nil
}

// Connect is CanReadSource returning the ConnectionError, whose Op names the failing stage.
func (r *Reader) Connect(ctx context.Context, source string) error {

	if err := r.connect(ctx); err != nil {
		r.logger.Warn("can't read source", zap.String("source", source), zap.Error(err))
		return err
	}

	return nil
}

func (r *Reader) connected() bool {
	return r.conn != nil && !r.conn.IsClosed() && r.channel != nil && !r.channel.IsClosed()
}

// connect reuses a live connection and channel, or establishes whatever is missing.
// It does not retry; any failure releases what was set up and returns a ConnectionError.
func (r *Reader) connect(ctx context.Context) error {

	if r.connected() {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return models.NewConnectionError(stageDial, err)
	}

	r.state = Connecting

	// Compare, then rebuild only what is gone.
	if r.conn == nil || r.conn.IsClosed() {
		if r.conn != nil || r.channel != nil {
			r.logger.Warn("connection lost, reconnecting", zap.String("address", r.config.Address()))
			_ = r.cleanupConnection()
			r.state = Connecting
		}

		r.logger.Info("connect to AMQP",
			zap.String("address", r.config.Address()),
			zap.String("vhost", r.config.Vhost),
			zap.Bool("secure", r.config.Secure()))

		conn, err := r.dialer.Dial(r.config, r.connectionName())
		if err != nil {
			return r.connectFailed(stageDial, err)
		}

		r.conn = conn
	}

	if r.channel == nil || r.channel.IsClosed() {
		if r.channel != nil {
			_ = r.channel.Close()
			r.channel = nil
			r.discardSubscription()
		}

		channel, err := r.conn.Channel()
		if err != nil {
			return r.connectFailed(stageChannel, err)
		}
		r.channel = channel

		// Declare
		err = topology.
			NewTopologer(channel, r.logger).
			BuildTopology(models.TopologyFromConfig(r.config))
		if err != nil {
			return r.connectFailed(stageTopology, err)
		}

		if r.config.PrefetchCount > 0 {
			if err := channel.Qos(r.config.PrefetchCount, 0, false); err != nil {
				return r.connectFailed(stageQos, err)
			}
		}
	}

	r.logger.Debug("connected", zap.String("queue", r.config.Queue))
	return nil
}

// subscribe registers the delivery callback once per channel.
func (r *Reader) subscribe() error {

	if r.subscribed {
		return nil
	}

	if err := r.channel.Consume(r.config.Queue, r.config.ConsumerTag, r.processMessage); err != nil {
		return r.connectFailed(stageConsume, err)
	}

	r.subscribed = true
	r.state = Subscribed
	r.logger.Info("consuming", zap.String("queue", r.config.Queue), zap.String("consumer_tag", r.config.ConsumerTag))

	return nil
}

// discardSubscription forgets the consumer. Unacked deliveries of a dead channel
// will be redelivered by the broker, so in strict mode they leave the buffer too.
func (r *Reader) discardSubscription() {

	r.subscribed = false

	if !r.config.StrictAck() {
		return
	}

	if dropped := r.buffer.Drain(); len(dropped) > 0 {
		r.logger.Warn("dropped unacknowledged deliveries of a closed channel", zap.Int("count", len(dropped)))
		r.metrics.SetBuffered(r.config.Queue, 0)
	}
}

func (r *Reader) connectFailed(stage string, err error) error {

	r.logger.Error("failed to connect to AMQP",
		zap.String("stage", stage),
		zap.String("error_type", errorType(err)),
		zap.Error(err))

	r.metrics.RecordConnectionFailure(r.config.Queue, stage)
	_ = r.cleanupConnection()

	return models.NewConnectionError(stage, err)
}

func (r *Reader) connectionName() string {
	return fmt.Sprintf("%s-%s", r.config.Name, r.session.String())
}
