package stream

import (
	"context"

	"github.com/ridepool/chat-service/internal/domain"
)

// MessageProducer emits persisted messages onto the event stream consumed by
// downstream pipelines (push notifications, analytics). Production happens
// strictly after the durable write; a stream failure never blocks or undoes
// a send.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.Message) error
	Close() error
}
