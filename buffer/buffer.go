// Package buffer holds deliveries between the broker callback and the consume loop.
package buffer

import (
	"github.com/Workiva/go-datastructures/queue"

	"github.com/houseofcat/rabbitreader/models"
)

const defaultHint = 64

// DeliveryBuffer is a FIFO of received but not yet consumed messages.
// Push and Pop are safe to call from different goroutines.
type DeliveryBuffer struct {
	queue *queue.Queue
}

// New creates a DeliveryBuffer sized for hint messages. The buffer grows past hint as needed.
func New(hint int64) *DeliveryBuffer {

	if hint <= 0 {
		hint = defaultHint
	}

	return &DeliveryBuffer{
		queue: queue.New(hint),
	}
}

// Push appends a message to the tail. It only fails once the buffer is disposed.
func (db *DeliveryBuffer) Push(msg *models.ReceivedMessage) error {
	return db.queue.Put(msg)
}

// Pop removes the message at the head. It never blocks; ok is false when the buffer is empty.
func (db *DeliveryBuffer) Pop() (msg *models.ReceivedMessage, ok bool) {

	// Get blocks on an empty queue
	if db.queue.Empty() {
		return nil, false
	}

	items, err := db.queue.Get(1)
	if err != nil || len(items) == 0 {
		return nil, false
	}

	msg, ok = items[0].(*models.ReceivedMessage)
	return msg, ok
}

// Len returns the number of buffered messages.
func (db *DeliveryBuffer) Len() int {
	return int(db.queue.Len())
}

// Empty reports whether nothing is buffered.
func (db *DeliveryBuffer) Empty() bool {
	return db.queue.Empty()
}

// Drain removes and returns everything buffered, oldest first.
func (db *DeliveryBuffer) Drain() []*models.ReceivedMessage {

	count := db.queue.Len()
	if count == 0 {
		return nil
	}

	items, err := db.queue.Get(count)
	if err != nil {
		return nil
	}

	drained := make([]*models.ReceivedMessage, 0, len(items))
	for _, item := range items {
		if msg, ok := item.(*models.ReceivedMessage); ok {
			drained = append(drained, msg)
		}
	}

	return drained
}

// Dispose releases the buffer. Later pushes fail.
func (db *DeliveryBuffer) Dispose() {
	db.queue.Dispose()
}
