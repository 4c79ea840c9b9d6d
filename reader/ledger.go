package reader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/models"
	"github.com/houseofcat/rabbitreader/state"
)

// MarkLastRecordProcessed counts the current record as processed and moves on.
// With ack_mode on_processed this is when the message is acknowledged.
func (r *Reader) MarkLastRecordProcessed() error {

	if r.config.StrictAck() && r.currentMessage != nil {
		if err := r.currentMessage.Acknowledge(); err != nil {
			r.logger.Warn("failed to acknowledge processed message", zap.Error(err))
		}
	}

	r.metrics.RecordProcessed(r.config.Queue)
	r.lastProcessedRecord = r.currentRecord

	return r.advance(state.KeyProcessedCount)
}

// MarkLastRecordFailed counts the current record as failed and moves on.
// With ack_mode on_processed the message is rejected without requeue.
func (r *Reader) MarkLastRecordFailed() error {

	if r.config.StrictAck() && r.currentMessage != nil {
		if err := r.currentMessage.Nack(false); err != nil {
			r.logger.Warn("failed to nack failed message", zap.Error(err))
		}
	}

	r.metrics.RecordFailed(r.config.Queue)

	return r.advance(state.KeyFailedCount)
}

func (r *Reader) advance(counterKey string) error {

	r.sessionCount++
	r.currentRecord = r.lookaheadRecord
	r.currentMessage = nil

	if _, err := r.store.Increment(r.config.Name, counterKey, 1); err != nil {
		return fmt.Errorf("failed to update %s: %w", counterKey, err)
	}

	return nil
}

// ProcessedCount is the persisted number of processed records.
func (r *Reader) ProcessedCount() (int64, error) {
	return state.GetInt(r.store, r.config.Name, state.KeyProcessedCount)
}

// FailedCount is the persisted number of failed records.
func (r *Reader) FailedCount() (int64, error) {
	return state.GetInt(r.store, r.config.Name, state.KeyFailedCount)
}

// SessionCount is how many records were marked, either way, since this Reader was created.
func (r *Reader) SessionCount() int64 {
	return r.sessionCount
}

// CurrentRecord is the record returned by the last GetNextRecord that has not been marked yet.
func (r *Reader) CurrentRecord() models.Record {
	return r.currentRecord
}

// LastProcessedRecord is the record most recently marked processed.
func (r *Reader) LastProcessedRecord() models.Record {
	return r.lastProcessedRecord
}
