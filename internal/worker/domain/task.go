package domain

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ngthanhbui/imageflow-be/shared/message"
)

// TaskMessage pairs a decoded task with the broker delivery it arrived on,
// so the worker pool can ack or nack after processing.
type TaskMessage struct {
	Task     message.Task
	Delivery amqp.Delivery
}
