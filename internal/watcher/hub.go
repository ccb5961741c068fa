package watcher

import (
	"context"
	"errors"
	"sync"

	"dirwatch/internal/event"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

const DefaultBusName = "dir_events"

// HubOptions configures an EventHub.
type HubOptions struct {
	Backend              Backend
	Logger               *logging.Logger
	Metrics              *metrics.Registry
	MaxWatches           int
	SubscriberBufferSize int
	MaxSubscribers       int
}

// EventHub owns a Registry and the bus its events are published on.
// Subscribing or unsubscribing never changes which directories are watched.
type EventHub struct {
	registry  *Registry
	bus       *event.Bus[Event]
	closeOnce sync.Once
	closeErr  error
}

// NewEventHub creates an EventHub that closes itself once ctx is done.
func NewEventHub(ctx context.Context, options HubOptions) *EventHub {
	if ctx == nil {
		ctx = context.Background()
	}
	hub := &EventHub{
		registry: NewRegistry(Options{
			Backend:    options.Backend,
			Logger:     options.Logger,
			Metrics:    options.Metrics,
			MaxWatches: options.MaxWatches,
		}),
		bus: event.NewBus[Event](context.Background(), event.BusOptions{
			Name:                 DefaultBusName,
			SubscriberBufferSize: options.SubscriberBufferSize,
			MaxSubscribers:       options.MaxSubscribers,
			Metrics:              options.Metrics,
			Logger:               options.Logger,
		}),
	}
	context.AfterFunc(ctx, func() { _ = hub.Close() })
	return hub
}

// Watch registers a directory whose events are published to every subscriber.
func (hub *EventHub) Watch(path string) error {
	if hub == nil {
		return errors.New("event hub is nil")
	}
	return hub.registry.WatchDir(path, hub.Publish)
}

// Unwatch stops watching a directory.
func (hub *EventHub) Unwatch(path string) error {
	if hub == nil {
		return nil
	}
	return hub.registry.UnwatchDir(path)
}

// UnwatchAll stops watching every directory.
func (hub *EventHub) UnwatchAll() {
	if hub == nil {
		return
	}
	hub.registry.UnwatchAll()
}

// Publish broadcasts an event to all subscribers.
func (hub *EventHub) Publish(event Event) {
	if hub == nil || event.Kind == "" {
		return
	}
	hub.bus.Publish(event)
}

// Subscribe returns every future event until cancel is called or the hub closes.
func (hub *EventHub) Subscribe() (<-chan Event, func()) {
	if hub == nil {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	return hub.bus.Subscribe()
}

// SubscribeKinds returns only events of the listed kinds.
func (hub *EventHub) SubscribeKinds(kinds ...Kind) (<-chan Event, func()) {
	if hub == nil {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	types := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		types = append(types, string(kind))
	}
	return hub.bus.SubscribeTypes(types...)
}

func (hub *EventHub) Registry() *Registry {
	if hub == nil {
		return nil
	}
	return hub.registry
}

// SubscriberCount reports the number of active subscriptions.
func (hub *EventHub) SubscriberCount() int {
	if hub == nil {
		return 0
	}
	return hub.bus.SubscriberCount()
}

// Stats reports lifetime published and dropped event counts.
func (hub *EventHub) Stats() (published, dropped int64) {
	if hub == nil {
		return 0, 0
	}
	return hub.bus.Stats()
}

// Close releases every watch, then closes subscriber channels. Repeated
// calls return the first result.
func (hub *EventHub) Close() error {
	if hub == nil {
		return nil
	}
	hub.closeOnce.Do(func() {
		hub.closeErr = hub.registry.Close()
		hub.bus.Close()
	})
	return hub.closeErr
}
