package outbox

import "context"

// Event is a domain fact published after a commit. EventName doubles as the routing key.
type Event interface {
	EventName() string
}

type Handler func(ctx context.Context, e Event) error

// Publisher hands events to subscribers. Delivery is best effort: a nil error means the
// event was accepted, not that any observer saw it.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers by event name. Handlers registered after an event was
// published do not receive it.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
