package reader

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/broker"
	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/utils"
)

const opGetNextRecord = "getNextRecord"

// GetNextRecord returns the next record, connecting and subscribing first when needed.
//
// It blocks until a message is available, the configured timeout elapses with nothing
// buffered (TimeoutError), or ctx is done (TimeoutError wrapping ctx.Err()).
// Connection failures are ConnectionError and a body that is not a JSON object is a DecodeError.
// After a TimeoutError the Reader is still usable.
func (r *Reader) GetNextRecord(ctx context.Context) (models.Record, error) {

	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	if err := r.subscribe(); err != nil {
		return nil, err
	}

WaitLoop:
	for {
		if msg, ok := r.buffer.Pop(); ok {
			r.metrics.SetBuffered(r.config.Queue, r.buffer.Len())
			return r.deliver(msg)
		}

		r.state = Waiting
		started := time.Now()
		err := r.channel.Wait(ctx, r.config.Timeout)
		r.metrics.ObserveWait(r.config.Queue, time.Since(started))

		switch {
		case err == nil:
			continue

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, r.timedOut(err)

		case errors.Is(err, broker.ErrWaitTimeout):
			break WaitLoop

		case errors.Is(err, broker.ErrConsumerClosed) || errors.Is(err, broker.ErrNotConsuming):
			r.logger.Warn("consumer is no longer registered", zap.Error(err))
			r.discardSubscription()
			return nil, r.timedOut(err)

		default:
			// the server closed the channel, e.g. the queue was deleted
			r.logger.Error("channel closed while waiting", zap.String("error_type", errorType(err)), zap.Error(err))
			r.metrics.RecordConnectionFailure(r.config.Queue, stageConsume)
			_ = r.cleanupConnection()
			return nil, models.NewConnectionError(opGetNextRecord, err)
		}
	}

	return nil, r.timedOut(broker.ErrWaitTimeout)
}

func (r *Reader) timedOut(cause error) error {

	r.state = TimedOut
	r.metrics.RecordTimeout(r.config.Queue)
	r.logger.Debug("listening to messages timed out", zap.Duration("timeout", r.config.Timeout), zap.Error(cause))

	return models.NewTimeoutError(opGetNextRecord, cause)
}

// deliver decodes msg and makes it the current record.
func (r *Reader) deliver(msg *models.ReceivedMessage) (models.Record, error) {

	record, err := utils.DecodeRecord(msg.Body, r.config.Payload)
	if err != nil {
		r.logger.Error("failed to decode message",
			zap.Uint64("delivery_tag", msg.Delivery.DeliveryTag),
			zap.String("message_id", msg.MessageID),
			zap.Bool("acked", msg.Acked),
			zap.ByteString("body", msg.Body),
			zap.Error(err))
		r.metrics.RecordDecodeFailure(r.config.Queue)

		if r.config.StrictAck() {
			if nackErr := msg.Nack(false); nackErr != nil {
				r.logger.Warn("failed to nack undecodable message", zap.Error(nackErr))
			}
		}

		r.state = Delivered
		return nil, models.NewDecodeError(opGetNextRecord, err, msg.Body)
	}

	r.currentMessage = msg
	r.currentRecord = record
	r.state = Delivered

	return record, nil
}
