package models

import (
	"errors"
	"time"

	"github.com/streadway/amqp"
)

// Record is one decoded message body.
type Record map[string]interface{}

// ReceivedMessage allow for you to acknowledge, after processing the received payload, by its RabbitMQ tag and Channel pointer.
type ReceivedMessage struct {
	IsAckable     bool
	Acked         bool
	Body          []byte
	MessageID     string
	ApplicationID string
	PublishDate   string
	Delivery      amqp.Delivery // Access everything.
}

// NewReceivedMessage creates a new ReceivedMessage.
func NewReceivedMessage(
	isAckable bool,
	delivery amqp.Delivery) *ReceivedMessage {

	publishDate := ""
	if !delivery.Timestamp.IsZero() {
		publishDate = delivery.Timestamp.UTC().Format(time.RFC3339)
	}

	return &ReceivedMessage{
		IsAckable:     isAckable,
		Body:          delivery.Body,
		MessageID:     delivery.MessageId,
		ApplicationID: delivery.AppId,
		PublishDate:   publishDate,
		Delivery:      delivery,
	}
}

// Acknowledge allows for you to acknowledge message on the original channel it was received.
// Fails if the channel it arrived on is closed.
// Can't ack from a different channel.
func (msg *ReceivedMessage) Acknowledge() error {
	if !msg.IsAckable {
		return errors.New("can't acknowledge, not an ackable message")
	}

	if msg.Acked {
		return nil
	}

	if msg.Delivery.Acknowledger == nil {
		return errors.New("can't acknowledge, internal channel is nil")
	}

	if err := msg.Delivery.Acknowledger.Ack(msg.Delivery.DeliveryTag, false); err != nil {
		return err
	}

	msg.Acked = true
	return nil
}

// Nack allows for you to negative acknowledge message on the original channel it was received.
// Fails if the channel it arrived on is closed.
func (msg *ReceivedMessage) Nack(requeue bool) error {
	if !msg.IsAckable {
		return errors.New("can't nack, not an ackable message")
	}

	if msg.Acked {
		return nil
	}

	if msg.Delivery.Acknowledger == nil {
		return errors.New("can't nack, internal channel is nil")
	}

	if err := msg.Delivery.Acknowledger.Nack(msg.Delivery.DeliveryTag, false, requeue); err != nil {
		return err
	}

	msg.Acked = true
	return nil
}

// Reject allows for you to reject on the original channel it was received.
// Fails if the channel it arrived on is closed.
func (msg *ReceivedMessage) Reject(requeue bool) error {
	if !msg.IsAckable {
		return errors.New("can't reject, not an ackable message")
	}

	if msg.Acked {
		return nil
	}

	if msg.Delivery.Acknowledger == nil {
		return errors.New("can't reject, internal channel is nil")
	}

	if err := msg.Delivery.Acknowledger.Reject(msg.Delivery.DeliveryTag, requeue); err != nil {
		return err
	}

	msg.Acked = true
	return nil
}
