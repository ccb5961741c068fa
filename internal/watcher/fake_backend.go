package watcher

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FakeBackend implements an in-memory Backend for tests. Events are injected
// per directory with the Inject* helpers instead of coming from the OS. A
// relative name is taken to be relative to the watched directory.
type FakeBackend struct {
	mutex     sync.Mutex
	sources   map[string]*FakeSource
	opened    int
	openErrs  map[string]error
	closeErrs map[string]error
	hold      chan struct{}
}

// NewFakeBackend returns a FakeBackend with no watches.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		sources:   make(map[string]*FakeSource),
		openErrs:  make(map[string]error),
		closeErrs: make(map[string]error),
	}
}

func (backend *FakeBackend) Open(path string) (Source, error) {
	backend.mutex.Lock()
	hold := backend.hold
	backend.mutex.Unlock()
	if hold != nil {
		<-hold
	}

	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	if err := backend.openErrs[path]; err != nil {
		return nil, err
	}
	source := &FakeSource{
		events:   make(chan fsnotify.Event, 64),
		errors:   make(chan error, 8),
		closeErr: backend.closeErrs[path],
	}
	backend.sources[path] = source
	backend.opened++
	return source, nil
}

// Hold makes Open block until the returned release func is called.
func (backend *FakeBackend) Hold() func() {
	gate := make(chan struct{})
	backend.mutex.Lock()
	backend.hold = gate
	backend.mutex.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			backend.mutex.Lock()
			backend.hold = nil
			backend.mutex.Unlock()
			close(gate)
		})
	}
}

// FailOpen makes Open fail for path.
func (backend *FakeBackend) FailOpen(path string, err error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.openErrs[path] = err
}

// FailClose makes the Source opened for path fail on Close.
func (backend *FakeBackend) FailClose(path string, err error) {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.closeErrs[path] = err
}

// Opened counts the Sources created so far.
func (backend *FakeBackend) Opened() int {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return backend.opened
}

// Source returns the latest Source opened for path.
func (backend *FakeBackend) Source(path string) *FakeSource {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return backend.sources[path]
}

// InjectCreate sends a create event for name to the watch on dir.
func (backend *FakeBackend) InjectCreate(dir, name string) error {
	return backend.inject(dir, fsnotify.Event{Name: name, Op: fsnotify.Create})
}

// InjectRemove sends a remove event for name to the watch on dir.
func (backend *FakeBackend) InjectRemove(dir, name string) error {
	return backend.inject(dir, fsnotify.Event{Name: name, Op: fsnotify.Remove})
}

// InjectRename sends a rename event for name to the watch on dir.
func (backend *FakeBackend) InjectRename(dir, name string) error {
	return backend.inject(dir, fsnotify.Event{Name: name, Op: fsnotify.Rename})
}

// InjectWrite sends a write event for name to the watch on dir.
func (backend *FakeBackend) InjectWrite(dir, name string) error {
	return backend.inject(dir, fsnotify.Event{Name: name, Op: fsnotify.Write})
}

// InjectError sends a backend error to the watch on dir.
func (backend *FakeBackend) InjectError(dir string, err error) error {
	source := backend.Source(dir)
	if source == nil {
		return errors.New("no watch for " + dir)
	}
	source.errors <- err
	return nil
}

func (backend *FakeBackend) inject(dir string, event fsnotify.Event) error {
	source := backend.Source(dir)
	if source == nil {
		return errors.New("no watch for " + dir)
	}
	if source.Closed() {
		return errors.New("watch closed for " + dir)
	}
	if !filepath.IsAbs(event.Name) {
		event.Name = filepath.Join(dir, event.Name)
	}
	source.events <- event
	return nil
}

// FakeSource is the Source handed out by FakeBackend.
type FakeSource struct {
	mutex    sync.Mutex
	events   chan fsnotify.Event
	errors   chan error
	closed   bool
	closeErr error
}

func (source *FakeSource) Events() <-chan fsnotify.Event {
	return source.events
}

func (source *FakeSource) Errors() <-chan error {
	return source.errors
}

func (source *FakeSource) Close() error {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	source.closed = true
	return source.closeErr
}

// Closed reports whether Close has been called.
func (source *FakeSource) Closed() bool {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	return source.closed
}
