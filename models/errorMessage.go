package models

import (
	"fmt"

	"github.com/streadway/amqp"
)

// ErrorMessage is the close notification a connection or channel received, e.g. 404 NOT_FOUND after the queue was deleted.
type ErrorMessage struct {
	Code    int
	Reason  string
	Server  bool // closed by the broker rather than by this client
	Recover bool // a new channel may succeed where this one failed
}

// NewErrorMessage copies amqpError so it outlives the notification channel.
func NewErrorMessage(amqpError *amqp.Error) *ErrorMessage {
	return &ErrorMessage{
		Code:    amqpError.Code,
		Reason:  amqpError.Reason,
		Server:  amqpError.Server,
		Recover: amqpError.Recover,
	}
}

// Error allows you to log or return the ErrorMessage as an error.
func (em *ErrorMessage) Error() string {
	initiator := "client"
	if em.Server {
		initiator = "server"
	}

	return fmt.Sprintf("amqp close %d by %s: %s (recoverable: %t)", em.Code, initiator, em.Reason, em.Recover)
}
