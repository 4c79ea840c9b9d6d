// Package reader pulls records one at a time from a RabbitMQ queue.
//
// The broker pushes deliveries; a Reader buffers them and hands them out through
// GetNextRecord, blocking up to the configured timeout. A Reader is meant to be
// driven by a single goroutine. Cancel the context to interrupt a blocked call.
package reader

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/broker"
	"github.com/houseofcat/rabbitreader/buffer"
	"github.com/houseofcat/rabbitreader/metrics"
	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/state"
)

// Reader is the message queue reader.
type Reader struct {
	config  *models.ReaderConfig
	dialer  broker.Dialer
	store   state.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	session uuid.UUID

	conn       broker.Connection
	channel    broker.Channel
	subscribed bool
	buffer     *buffer.DeliveryBuffer
	state      State

	currentMessage      *models.ReceivedMessage
	currentRecord       models.Record
	lookaheadRecord     models.Record // never filled; this Reader does not read ahead
	lastProcessedRecord models.Record
	sessionCount        int64
}

// NewReader creates a Reader. Nothing connects until CanReadSource or GetNextRecord.
// A nil dialer dials RabbitMQ, a nil store keeps state in memory, nil logger and metrics disable both.
func NewReader(
	config *models.ReaderConfig,
	dialer broker.Dialer,
	store state.Store,
	logger *zap.Logger,
	readerMetrics *metrics.Metrics) (*Reader, error) {

	if config == nil {
		return nil, models.NewConfigurationError("", "config is nil")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	if dialer == nil {
		dialer = broker.AMQPDialer{Logger: logger}
	}

	if store == nil {
		store = state.NewMemoryStore()
	}

	session := uuid.New()

	return &Reader{
		config:  config,
		dialer:  dialer,
		store:   store,
		metrics: readerMetrics,
		session: session,
		buffer:  buffer.New(int64(config.PrefetchCount)),
		state:   Disconnected,
		logger: logger.With(
			zap.String("reader", config.Name),
			zap.String("session", session.String())),
	}, nil
}

// TypeName is the human readable name of this reader.
func (r *Reader) TypeName() string {
	return "Message Queue Reader"
}

// Config returns the configuration the Reader runs with.
func (r *Reader) Config() *models.ReaderConfig {
	return r.config
}

// Session identifies this Reader instance in logs and the broker connection name.
func (r *Reader) Session() uuid.UUID {
	return r.session
}

// State returns where the consume loop currently is.
func (r *Reader) State() State {
	return r.state
}

// VerifyConfiguration reports a ConfigurationError naming the first missing or invalid key.
func (r *Reader) VerifyConfiguration() error {
	return r.config.Validate()
}

// HasMoreRecords is always true: a queue may receive another message at any time.
func (r *Reader) HasMoreRecords() bool {
	return true
}

// SkipNextRecord does nothing. There is no read-ahead to skip over.
func (r *Reader) SkipNextRecord() {}

// Close closes the channel, then the connection. Already closed resources are logged and ignored.
func (r *Reader) Close() error {

	err := r.cleanupConnection()
	r.buffer.Dispose()

	if err != nil {
		return models.NewShutdownError("close", err)
	}

	return nil
}

// cleanupConnection releases the channel and connection, whatever state they are in.
func (r *Reader) cleanupConnection() error {

	var errs error

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = multierr.Append(errs, r.closeFailed("channel", err, broker.ErrChannelClosed))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = multierr.Append(errs, r.closeFailed("connection", err, broker.ErrConnectionClosed))
		}
	}

	r.channel = nil
	r.conn = nil
	r.discardSubscription()
	r.state = Disconnected

	return errs
}

// closeFailed logs a close error. It returns nil when the resource was already closed.
func (r *Reader) closeFailed(resource string, err error, alreadyClosed error) error {

	if errors.Is(err, alreadyClosed) {
		r.logger.Info(resource+" already closed", zap.Error(models.NewShutdownError("close "+resource, err)))
		return nil
	}

	r.logger.Error("failed to close "+resource, zap.Error(err))
	return err
}
