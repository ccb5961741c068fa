package watcher

import (
	"errors"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

// Kind names a normalized directory change. The values double as wire
// event names.
type Kind string

const (
	KindFileAdd    Kind = "file-add"
	KindFileUnlink Kind = "file-unlink"
	KindDirAdd     Kind = "dir-add"
	KindDirUnlink  Kind = "dir-unlink"
)

var (
	ErrInvalidPath    = errors.New("invalid watch path")
	ErrWatcherRelease = errors.New("watcher release failed")
	ErrMaxWatches     = errors.New("max watches exceeded")
	ErrRegistryClosed = errors.New("watch registry is closed")
)

// Kinds lists every normalized event kind.
func Kinds() []Kind {
	return []Kind{KindFileAdd, KindFileUnlink, KindDirAdd, KindDirUnlink}
}

// ParseKind accepts a wire event name.
func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindFileAdd, KindFileUnlink, KindDirAdd, KindDirUnlink:
		return Kind(value), true
	default:
		return "", false
	}
}

// IsDirectory reports whether the kind describes a subdirectory.
func (kind Kind) IsDirectory() bool {
	return kind == KindDirAdd || kind == KindDirUnlink
}

// IsAdd reports whether the kind describes a new entry.
func (kind Kind) IsAdd() bool {
	return kind == KindFileAdd || kind == KindDirAdd
}

// Event is one normalized change to the direct children of Parent.
// Path equals Parent when the watched directory itself went away.
type Event struct {
	Kind       Kind      `json:"type"`
	Parent     string    `json:"parent"`
	Path       string    `json:"path"`
	OccurredAt time.Time `json:"timestamp"`
}

func (event Event) Type() string {
	return string(event.Kind)
}

func (event Event) Timestamp() time.Time {
	return event.OccurredAt
}

// Options configures a Registry.
type Options struct {
	Backend    Backend
	Logger     *logging.Logger
	Metrics    *metrics.Registry
	MaxWatches int
}
