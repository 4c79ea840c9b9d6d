package reader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/models"
)

// processMessage is the delivery callback. It runs inside Channel.Wait on the
// goroutine calling GetNextRecord. It never decodes and never panics.
func (r *Reader) processMessage(msg *models.ReceivedMessage) {

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("delivery callback panicked", zap.Any("panic", rec))
		}
	}()

	r.logger.Debug("received message",
		zap.Uint64("delivery_tag", msg.Delivery.DeliveryTag),
		zap.String("message_id", msg.MessageID),
		zap.ByteString("body", msg.Body))

	// early ack: a crash before MarkLastRecordProcessed loses this message
	if !r.config.StrictAck() {
		if err := msg.Acknowledge(); err != nil {
			r.logger.Warn("failed to acknowledge message", zap.Uint64("delivery_tag", msg.Delivery.DeliveryTag), zap.Error(err))
		}
	}

	if err := r.buffer.Push(msg); err != nil {
		r.logger.Error("failed to buffer message", zap.Uint64("delivery_tag", msg.Delivery.DeliveryTag), zap.Error(err))
		return
	}

	r.metrics.RecordMessageReceived(r.config.Queue)
	r.metrics.SetBuffered(r.config.Queue, r.buffer.Len())
}

func errorType(err error) string {
	return fmt.Sprintf("%T", err)
}
