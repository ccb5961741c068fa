package watcher

import (
	"github.com/fsnotify/fsnotify"
)

// Source is one shallow OS watch on a single directory.
type Source interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// Backend opens a Source for a directory.
type Backend interface {
	Open(path string) (Source, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(path string) (Source, error)

func (fn BackendFunc) Open(path string) (Source, error) {
	return fn(path)
}

// FSNotifyBackend gives every directory its own fsnotify.Watcher so an event
// can always be attributed to exactly one watched directory, even when a
// directory and its parent are both watched.
type FSNotifyBackend struct{}

func (FSNotifyBackend) Open(path string) (Source, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return fsnotifySource{watcher: watcher}, nil
}

type fsnotifySource struct {
	watcher *fsnotify.Watcher
}

func (source fsnotifySource) Events() <-chan fsnotify.Event {
	return source.watcher.Events
}

func (source fsnotifySource) Errors() <-chan error {
	return source.watcher.Errors
}

func (source fsnotifySource) Close() error {
	return source.watcher.Close()
}
