package event

import "time"

// Typed values name their type. SubscribeTypes filters on it and metrics
// use it as a label.
type Typed interface {
	Type() string
}

// Event is a typed value stamped with when it happened.
type Event interface {
	Typed
	Timestamp() time.Time
}
