package api

import (
	"strings"
	"sync"
	"time"

	"dirwatch/internal/watcher"
)

// kindFilter narrows a listener to a set of event kinds. An empty set lets
// every kind through.
type kindFilter struct {
	mutex sync.RWMutex
	kinds map[watcher.Kind]struct{}
}

func newKindFilter(values []string) *kindFilter {
	filter := &kindFilter{}
	filter.Set(values)
	return filter
}

func (filter *kindFilter) Allows(kind watcher.Kind) bool {
	filter.mutex.RLock()
	defer filter.mutex.RUnlock()
	if len(filter.kinds) == 0 {
		return true
	}
	_, ok := filter.kinds[kind]
	return ok
}

// Set replaces the filter. Values may be comma separated; unknown kinds are
// dropped.
func (filter *kindFilter) Set(values []string) {
	kinds := make(map[watcher.Kind]struct{})
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			kind, ok := watcher.ParseKind(strings.TrimSpace(part))
			if !ok {
				continue
			}
			kinds[kind] = struct{}{}
		}
	}
	filter.mutex.Lock()
	filter.kinds = kinds
	filter.mutex.Unlock()
}

func payloadForEvent(event watcher.Event) eventPayload {
	payload := eventPayload{
		Type:      string(event.Kind),
		Parent:    event.Parent,
		Path:      event.Path,
		Timestamp: event.OccurredAt,
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	return payload
}
