package pubsub

import "context"

const (
	// CreatedEvent announces a new row (upload task, result list).
	CreatedEvent EventType = "created"
	// UpdatedEvent carries a state change of an existing row.
	UpdatedEvent EventType = "updated"
	// DeletedEvent announces that rows were cleared.
	DeletedEvent EventType = "deleted"
	// FinishedEvent announces completion of a whole operation.
	FinishedEvent EventType = "finished"
)

// Subscriber hands out event channels that close when the context ends.
type Subscriber[T any] interface {
	Subscribe(context.Context) <-chan Event[T]
}

type (
	// EventType identifies what happened.
	EventType string

	// Event is one lifecycle notification.
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher fans events out to subscribers.
	Publisher[T any] interface {
		Publish(EventType, T)
		Deliver(context.Context, EventType, T) error
	}
)
