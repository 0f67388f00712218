package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its concrete type.
// A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case CameraDiscoveredEvent:
		event.Publish(b.dispatcher, e)
	case CameraConnectedEvent:
		event.Publish(b.dispatcher, e)
	case CameraConnectFailedEvent:
		event.Publish(b.dispatcher, e)
	case CameraOfflineEvent:
		event.Publish(b.dispatcher, e)
	case ConnectionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case FeedStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ShutdownRequestedEvent:
		event.Publish(b.dispatcher, e)
	case BridgeStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type in its signature and
// returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e CameraOfflineEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraDiscoveredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraConnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraConnectFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraOfflineEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FeedStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShutdownRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BridgeStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
